package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Gray Logic shutter service.
//
// Entity state and cover commands use the flat scheme shared with the
// protocol bridges: graylogic/{category}/{kind}/{id}. Decisions published by
// this service live under graylogic/core.
const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// TopicPrefixEntity carries retained entity state documents.
	TopicPrefixEntity = "graylogic/entity"

	// TopicPrefixCore is the base for topics owned by this service.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	cmd := topics.CoverCommand("cover.living_room")
//	// Returns: "graylogic/command/cover/cover.living_room"
type Topics struct{}

// =============================================================================
// Entity Topics
// =============================================================================

// EntityState returns the retained state topic for an entity.
//
// Example: graylogic/entity/sensor.outdoor_lux
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEntity, entityID)
}

// AllEntityStates returns a pattern matching every entity state topic.
//
// Pattern: graylogic/entity/+
func (Topics) AllEntityStates() string {
	return TopicPrefixEntity + "/+"
}

// EntityFromTopic extracts the entity id from an entity state topic.
// It returns false for topics outside graylogic/entity.
func (Topics) EntityFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefixEntity+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// =============================================================================
// Cover Command Topics
// =============================================================================

// CoverCommand returns the topic position commands are sent on.
//
// Example: graylogic/command/cover/cover.living_room
func (Topics) CoverCommand(coverID string) string {
	return fmt.Sprintf("%s/command/cover/%s", TopicPrefix, coverID)
}

// CoverAck returns the topic a bridge acknowledges cover commands on.
//
// Example: graylogic/ack/cover/cover.living_room
func (Topics) CoverAck(coverID string) string {
	return fmt.Sprintf("%s/ack/cover/%s", TopicPrefix, coverID)
}

// AllCoverAcks returns a pattern matching every cover acknowledgement.
//
// Pattern: graylogic/ack/cover/+
func (Topics) AllCoverAcks() string {
	return TopicPrefix + "/ack/cover/+"
}

// =============================================================================
// Core Topics
// =============================================================================

// CoverState returns the retained decision snapshot topic for a cover.
//
// Example: graylogic/core/cover/cover.living_room/state
func (Topics) CoverState(coverID string) string {
	return fmt.Sprintf("%s/cover/%s/state", TopicPrefixCore, coverID)
}

// SystemStatus returns the topic carrying this service's online status.
//
// Example: graylogic/system/status/graylogic-shutters
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// AllTopics returns a pattern matching all Gray Logic topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
