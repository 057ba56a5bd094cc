package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hearth-home/hearth-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial broker dial.
	connectTimeout = 10 * time.Second

	// opTimeout bounds waiting for publish/subscribe acks.
	opTimeout = 5 * time.Second

	// disconnectQuiesceMs is handed to paho's Disconnect, which takes
	// milliseconds.
	disconnectQuiesceMs = 1000

	keepAlive = 60 * time.Second

	maxQoS = 2
)

// Presence message fields, published retained on the status topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown = "graceful_shutdown"
	reasonCrash    = "unexpected_disconnect"
)

// clientOptions maps the mqtt config section onto paho options:
// broker URL, credentials, clean session with auto-reconnect, and the
// last-will presence message.
func clientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session plus our own subscription replay on reconnect.
	// Broker-side persistent sessions would also work, but replaying
	// keeps the client correct against brokers with short session
	// expiry.
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	// The will fires when the broker notices a dead connection. No
	// timestamp in the payload: it would show the connect time, not
	// the crash time.
	opts.SetWill(topics.SystemStatus(),
		string(statusPayload(cfg.Broker.ClientID, statusOffline, reasonCrash, false)), 1, true)

	return opts
}

// statusPayload builds a presence message for the status topic.
func statusPayload(clientID, status, reason string, stamped bool) []byte {
	msg := struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
	}{
		Status:   status,
		ClientID: clientID,
		Reason:   reason,
	}
	if stamped {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	// Marshalling a flat struct of strings cannot fail.
	payload, _ := json.Marshal(msg)
	return payload
}
