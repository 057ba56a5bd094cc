package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hearth-home/hearth-core/internal/audit"
	"github.com/hearth-home/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearth-home/hearth-core/internal/room"
)

// Bridge operation constants.
const (
	// maxQoS is the highest valid MQTT quality of service level.
	maxQoS = 2

	// requestTimeout bounds engine calls triggered by inbound messages.
	requestTimeout = 5 * time.Second
)

// Bridge connects the schedule engine to the MQTT broker. It handles:
//   - Receiving entity state reports and feeding them to the engine
//   - Receiving set_value and reschedule requests from external clients
//   - Publishing actor commands and room value announcements
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte

	// Engine is set by Start; inbound handlers are only subscribed
	// after it is available.
	engine   Engine
	engineMu sync.RWMutex

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Engine is the schedule engine surface the bridge drives.
// This interface is satisfied by *room.Manager.
type Engine interface {
	// HandleStateReport feeds an entity state report into the engine.
	HandleStateReport(entityID string, attrs map[string]any)

	// SetValueManually applies a manual override to a room.
	SetValueManually(ctx context.Context, name string, req room.Override) error

	// Reschedule re-evaluates a single room's schedule.
	Reschedule(ctx context.Context, name string, cancelRunning bool) error

	// RescheduleAll re-evaluates every room's schedule.
	RescheduleAll(ctx context.Context, cancelRunning bool)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the MQTT client implementation.
	MQTT MQTTClient

	// TopicPrefix is the root of the topic tree. Empty uses the
	// default prefix.
	TopicPrefix string

	// QoS is the quality of service for subscriptions and publishes.
	QoS byte

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("invalid QoS: %d", opts.QoS)
	}

	// Create bridge-level context so inbound handlers survive the
	// caller's Start context but stop with the bridge.
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:      opts.MQTT,
		topics:    mqtt.NewTopics(opts.TopicPrefix),
		qos:       opts.QoS,
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	return b, nil
}

// Start begins bridge operation. It wires the engine and subscribes to
// the inbound topics: entity state reports, per-room set_value requests,
// and reschedule requests.
func (b *Bridge) Start(engine Engine) error {
	if engine == nil {
		return fmt.Errorf("engine is required")
	}

	b.engineMu.Lock()
	b.engine = engine
	b.engineMu.Unlock()

	stateTopic := b.topics.AllEntityStates()
	if err := b.mqtt.Subscribe(stateTopic, b.qos, b.handleStateMessage); err != nil {
		return fmt.Errorf("subscribe to entity states: %w", err)
	}
	b.logInfo("subscribed to entity states", "topic", stateTopic)

	setValueTopic := b.topics.AllRoomSetValues()
	if err := b.mqtt.Subscribe(setValueTopic, b.qos, b.handleSetValueMessage); err != nil {
		return fmt.Errorf("subscribe to set_value requests: %w", err)
	}
	b.logInfo("subscribed to set_value requests", "topic", setValueTopic)

	rescheduleTopic := b.topics.Reschedule()
	if err := b.mqtt.Subscribe(rescheduleTopic, b.qos, b.handleRescheduleMessage); err != nil {
		return fmt.Errorf("subscribe to reschedule requests: %w", err)
	}
	b.logInfo("subscribed to reschedule requests", "topic", rescheduleTopic)

	return nil
}

// Stop gracefully shuts down the bridge. In-flight engine calls are
// cancelled via the bridge context.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.logInfo("bridge stopped")
	})
}

// PublishCommand sends an actor command as a JSON object on the entity's
// command topic. A nil data map publishes an empty object so consumers
// always receive valid JSON.
func (b *Bridge) PublishCommand(entityID, service string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	topic := b.topics.EntityCommand(entityID, service)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	b.logDebug("published command",
		"entity_id", entityID,
		"service", service,
		"topic", topic)

	return nil
}

// PublishRoomValue announces a room's current value. The message is
// retained so late subscribers see the latest value immediately.
func (b *Bridge) PublishRoomValue(roomName string, value any, scheduled bool) error {
	msg := RoomValueMessage{
		Room:      roomName,
		Value:     value,
		Scheduled: scheduled,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal room value: %w", err)
	}

	topic := b.topics.RoomValue(roomName)
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		return fmt.Errorf("publish room value: %w", err)
	}

	return nil
}

// getEngine returns the wired engine, or nil before Start.
func (b *Bridge) getEngine() Engine {
	b.engineMu.RLock()
	defer b.engineMu.RUnlock()
	return b.engine
}

// handleStateMessage processes an entity state report. The payload must
// be a JSON object; anything else is logged and dropped so a single bad
// publisher cannot wedge the state stream.
func (b *Bridge) handleStateMessage(topic string, payload []byte) error {
	engine := b.getEngine()
	if engine == nil {
		return nil
	}

	entityID, ok := b.topics.EntityFromState(topic)
	if !ok {
		b.logWarn("state report on unexpected topic", "topic", topic)
		return nil
	}

	var attrs map[string]any
	if err := json.Unmarshal(payload, &attrs); err != nil {
		b.logWarn("ignoring malformed state report",
			"entity_id", entityID,
			"error", err)
		return nil
	}

	engine.HandleStateReport(entityID, attrs)
	return nil
}

// handleSetValueMessage processes a manual override request for a room.
// Malformed requests are logged and dropped.
func (b *Bridge) handleSetValueMessage(topic string, payload []byte) error {
	engine := b.getEngine()
	if engine == nil {
		return nil
	}

	roomName, ok := b.topics.RoomFromSetValue(topic)
	if !ok {
		b.logWarn("set_value on unexpected topic", "topic", topic)
		return nil
	}

	req, err := parseSetValue(payload)
	if err != nil {
		b.logWarn("ignoring invalid set_value request",
			"room", roomName,
			"error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(audit.WithSource(b.ctx, audit.SourceMQTT), requestTimeout)
	defer cancel()

	if err := engine.SetValueManually(ctx, roomName, req); err != nil {
		b.logError("set_value failed", err, "room", roomName)
		return nil
	}

	b.logInfo("applied set_value request", "room", roomName)
	return nil
}

// handleRescheduleMessage processes a reschedule request. An empty or
// missing room reschedules every room.
func (b *Bridge) handleRescheduleMessage(_ string, payload []byte) error {
	engine := b.getEngine()
	if engine == nil {
		return nil
	}

	var msg rescheduleMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.logWarn("ignoring invalid reschedule request", "error", err)
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(audit.WithSource(b.ctx, audit.SourceMQTT), requestTimeout)
	defer cancel()

	if msg.Room == "" {
		engine.RescheduleAll(ctx, msg.CancelRunningTimer)
		b.logInfo("rescheduled all rooms")
		return nil
	}

	if err := engine.Reschedule(ctx, msg.Room, msg.CancelRunningTimer); err != nil {
		b.logError("reschedule failed", err, "room", msg.Room)
		return nil
	}

	b.logInfo("rescheduled room", "room", msg.Room)
	return nil
}

// SetLogger sets the logger after construction.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		args := append([]any{"error", err}, keysAndValues...)
		logger.Error(msg, args...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
