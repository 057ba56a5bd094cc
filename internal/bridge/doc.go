// Package bridge connects the Hearth schedule engine to the MQTT broker.
//
// It carries entity state reports and external control requests into the
// engine, and actor commands and room value announcements out of it. The
// engine itself never touches the broker directly.
//
// # Architecture
//
// The bridge sits between the broker and the room manager:
//
//	┌─────────────────┐          ┌─────────────────┐          ┌─────────────────┐
//	│  MQTT Broker    │   MQTT   │     Bridge      │   calls  │  room.Manager   │
//	│  (HA, clients)  │◄────────►│   (this pkg)    │◄────────►│    (engine)     │
//	└─────────────────┘          └─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Subscribe to entity state reports and feed them to the engine
//   - Subscribe to per-room set_value requests and apply them as
//     manual overrides
//   - Subscribe to reschedule requests (single room or all rooms)
//   - Publish actor commands on behalf of the engine
//   - Publish retained room value announcements
//
// # Message Handling
//
// Inbound handlers never return errors to the MQTT layer. Malformed
// payloads are logged and dropped so one bad publisher cannot disturb
// the subscription. Overrides arriving over MQTT are treated as
// untrusted: rooms reject their expressions unless configured to allow
// them.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use from multiple
// goroutines.
//
// # Usage
//
//	b, err := bridge.New(bridge.Options{
//	    MQTT:        client,
//	    TopicPrefix: cfg.MQTT.TopicPrefix,
//	    QoS:         cfg.MQTT.QoS,
//	    Logger:      logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer b.Stop()
//
//	// The bridge is the manager's CommandPublisher, so it exists first.
//	manager, err := room.NewManager(room.ManagerOptions{Commands: b, ...})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(manager); err != nil {
//	    return err
//	}
package bridge
