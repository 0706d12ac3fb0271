// Package influxdb provides InfluxDB connectivity for Gray Logic Shutters.
//
// It wraps the official influxdb-client-go v2 library and records every cover
// decision (target, reason, override state) as a "cover_decision" point so
// shading behaviour can be charted over a season.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "graylogic",
//	    Bucket: "covers",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteCoverDecision(influxdb.CoverDecision{
//	    Cover: "cover.living_room", Reason: "shading", Target: &target,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
package influxdb
