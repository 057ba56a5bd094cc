// Package mqtt wraps the paho client with connection management for
// Hearth Core: auto-reconnect with subscription replay, retained
// presence messages with a last-will counterpart, bounded publish and
// subscribe waits, and panic recovery around message handlers.
//
// # Architecture
//
// MQTT is the message bus between the schedule engine and the home
// automation fabric. Actors report state on state topics, the engine
// publishes actuation commands and resolved room values, and external
// clients inject overrides and re-schedule events.
//
//	Actors / HA bridge ↔ MQTT Broker ↔ Hearth Core
//
// Topic layout (prefix configurable, default "hearth"):
//
//	hearth/state/{entity_id}            inbound actor state reports
//	hearth/cmd/{entity_id}/{service}    outbound actuation commands
//	hearth/room/{room}/value            outbound room values (retained)
//	hearth/room/{room}/set_value        inbound manual overrides
//	hearth/reschedule                   inbound re-schedule events
//	hearth/status                       service presence and LWT (retained)
//
// Production deployments should enable TLS on the broker connection and
// authenticate against the broker ACL. Anonymous plaintext access is
// for local development only; payloads carry no encryption of their
// own.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Subscribe(client.Topics().AllEntityStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("state: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	topic := client.Topics().EntityCommand("climate.living", "set_temperature")
//	client.Publish(topic, []byte(`{"temperature":21.5}`), 1, false)
package mqtt
