package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementCoverDecision is the measurement cover decisions are written to.
const MeasurementCoverDecision = "cover_decision"

// CoverDecision is one decision of a cover engine as stored in InfluxDB.
//
// Entry, cover and reason become tags; the positions are fields and are
// omitted when unknown.
type CoverDecision struct {
	EntryID      string
	Cover        string
	Reason       string
	Target       *float64
	Position     *float64
	ManualActive bool
	Time         time.Time
}

// decisionPoint converts a decision to a line-protocol point.
func decisionPoint(d CoverDecision) *write.Point {
	tags := map[string]string{
		"entry_id": d.EntryID,
		"cover":    d.Cover,
		"reason":   d.Reason,
	}
	if d.Reason == "" {
		tags["reason"] = "none"
	}

	fields := map[string]any{
		"manual_active": d.ManualActive,
	}
	if d.Target != nil {
		fields["target"] = *d.Target
	}
	if d.Position != nil {
		fields["position"] = *d.Position
	}

	ts := d.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(MeasurementCoverDecision, tags, fields, ts)
}

// WriteCoverDecision queues a cover decision for batched delivery.
//
// Example:
//
//	client.WriteCoverDecision(influxdb.CoverDecision{
//	    EntryID: "south", Cover: "cover.living_room",
//	    Reason: "shading", Target: &target, Time: now,
//	})
func (c *Client) WriteCoverDecision(d CoverDecision) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(decisionPoint(d))
}
