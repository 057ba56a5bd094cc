package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "hearth"

// Topics builds the Hearth topic hierarchy under a configurable prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
// The wire scheme:
//
//	{prefix}/state/{entity_id}            actor state reports (inbound)
//	{prefix}/cmd/{entity_id}/{service}    actuation commands (outbound)
//	{prefix}/room/{room}/value            resolved room values (outbound, retained)
//	{prefix}/room/{room}/set_value        manual override events (inbound)
//	{prefix}/reschedule                   re-schedule events (inbound)
//	{prefix}/status                       service status and LWT (outbound, retained)
//
// Entity IDs keep their dotted form ("climate.living") as a single topic
// level; MQTT only reserves "/", "+" and "#".
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder for the given prefix.
// An empty prefix falls back to DefaultPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the configured topic prefix.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultPrefix
	}
	return t.prefix
}

// =============================================================================
// Entity Topics
// =============================================================================

// EntityState returns the topic carrying state reports for one entity.
//
// Example: hearth/state/climate.living
func (t Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", t.Prefix(), entityID)
}

// AllEntityStates returns a pattern matching every entity state report.
//
// Pattern: hearth/state/+
func (t Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/+", t.Prefix())
}

// EntityCommand returns the actuation topic for one entity and service.
//
// Example: hearth/cmd/climate.living/set_temperature
func (t Topics) EntityCommand(entityID, service string) string {
	return fmt.Sprintf("%s/cmd/%s/%s", t.Prefix(), entityID, service)
}

// AllEntityCommands returns a pattern matching every actuation command.
//
// Pattern: hearth/cmd/+/+
func (t Topics) AllEntityCommands() string {
	return fmt.Sprintf("%s/cmd/+/+", t.Prefix())
}

// =============================================================================
// Room Topics
// =============================================================================

// RoomValue returns the topic announcing a room's current value.
// Published retained so late subscribers see the last resolved value.
//
// Example: hearth/room/living/value
func (t Topics) RoomValue(room string) string {
	return fmt.Sprintf("%s/room/%s/value", t.Prefix(), room)
}

// RoomSetValue returns the manual override topic for a room.
//
// Example: hearth/room/living/set_value
func (t Topics) RoomSetValue(room string) string {
	return fmt.Sprintf("%s/room/%s/set_value", t.Prefix(), room)
}

// AllRoomSetValues returns a pattern matching every room's set_value topic.
//
// Pattern: hearth/room/+/set_value
func (t Topics) AllRoomSetValues() string {
	return fmt.Sprintf("%s/room/+/set_value", t.Prefix())
}

// =============================================================================
// System Topics
// =============================================================================

// Reschedule returns the topic carrying re-schedule events.
//
// Example: hearth/reschedule
func (t Topics) Reschedule() string {
	return fmt.Sprintf("%s/reschedule", t.Prefix())
}

// SystemStatus returns the service status topic, also used for the LWT.
//
// Example: hearth/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", t.Prefix())
}

// AllTopics returns a pattern matching every Hearth topic.
// Use with caution - this receives ALL traffic.
//
// Pattern: hearth/#
func (t Topics) AllTopics() string {
	return t.Prefix() + "/#"
}

// =============================================================================
// Inbound Topic Parsing
// =============================================================================

// EntityFromState extracts the entity ID from a state report topic.
// ok is false if the topic is not directly under {prefix}/state/.
func (t Topics) EntityFromState(topic string) (entityID string, ok bool) {
	entityID, found := strings.CutPrefix(topic, t.Prefix()+"/state/")
	if !found || entityID == "" || strings.Contains(entityID, "/") {
		return "", false
	}
	return entityID, true
}

// RoomFromSetValue extracts the room name from a set_value topic.
// ok is false for any other topic shape.
func (t Topics) RoomFromSetValue(topic string) (room string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/room/")
	if !found {
		return "", false
	}
	room, found = strings.CutSuffix(rest, "/set_value")
	if !found || room == "" || strings.Contains(room, "/") {
		return "", false
	}
	return room, true
}
