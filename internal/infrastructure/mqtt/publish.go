package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads at 1MB, within the default
// limits of common brokers. Room values and commands are a few hundred
// bytes; anything near this limit is a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends a message and waits for the broker's ack (QoS > 0) or
// for the packet to be written (QoS 0). Retained messages replace the
// broker's stored value for the topic; use them for state, never for
// commands, which must not replay at a subscriber restart.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, opTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}
