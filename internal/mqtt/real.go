package mqtt

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/plant-controller/internal/logic"
	"github.com/sweeney/plant-controller/internal/sensor"
)

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are queued and replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	outbox *outbox
	now    func() time.Time

	connectedOnce atomic.Bool
}

func newPublisher(client paho.Client, bufferSize int) *RealPublisher {
	return &RealPublisher{
		client: client,
		outbox: newOutbox(bufferSize),
		now:    time.Now,
	}
}

// NewRealPublisher creates a publisher for the given broker. It does not fail
// when the broker is unreachable; paho keeps retrying in the background.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := newPublisher(nil, DefaultBufferSize)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, queueing messages", broker)
	} else if err := token.Error(); err != nil {
		log.Printf("mqtt: connect to %s: %v", broker, err)
	}
	return p
}

// onConnect replays queued messages, then announces the reconnect. The first
// connect after startup is not a reconnect; STARTUP covers it.
func (p *RealPublisher) onConnect(c paho.Client) {
	msgs, dropped := p.outbox.drain()
	if len(msgs) > 0 || dropped > 0 {
		log.Printf("mqtt: connected, replaying %d queued messages (%d dropped)", len(msgs), dropped)
	}
	for _, m := range msgs {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			log.Printf("mqtt: replay to %s failed: %v", m.topic, token.Error())
		}
	}

	if !p.connectedOnce.Swap(true) {
		return
	}
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED", Dropped: dropped})
	c.Publish(TopicSystem, 1, false, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.outbox.push(queuedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		return nil
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishWater sends a watering pulse event.
func (p *RealPublisher) PublishWater(event WaterEvent) error {
	payload, err := FormatWaterPayload(event)
	if err != nil {
		return fmt.Errorf("format water payload: %w", err)
	}
	// QoS 1: pulses are rare and worth delivering.
	return p.send(TopicWater, 1, false, payload)
}

// PublishSensors sends a sensor reading.
func (p *RealPublisher) PublishSensors(at time.Time, snap sensor.Snapshot) error {
	payload, err := FormatSensorPayload(at, snap)
	if err != nil {
		return fmt.Errorf("format sensor payload: %w", err)
	}
	return p.send(TopicSensors, 0, false, payload)
}

// PublishEvent sends a touch or soil transition.
func (p *RealPublisher) PublishEvent(event logic.Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.send(TopicEvents, 1, false, payload)
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(TopicSystem, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Queued returns the number of messages waiting for the broker.
func (p *RealPublisher) Queued() int {
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
