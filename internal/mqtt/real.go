package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are queued and replayed once it comes back.
type RealPublisher struct {
	client paho.Client

	mu      sync.Mutex
	pending *outbox
}

// NewRealPublisher creates a publisher connected to the given broker.
// If the broker is not reachable within the connect timeout the publisher is
// still returned; paho keeps retrying and queued messages go out on connect.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{pending: newOutbox(DefaultOutboxSize)}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", broker)
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: %s not reachable yet, queueing until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisherWithClient wraps an existing client. Used by tests.
func newPublisherWithClient(client paho.Client, size int) *RealPublisher {
	return &RealPublisher{client: client, pending: newOutbox(size)}
}

// PublishRelay sends a relay transition (QoS 1, retained so late subscribers
// see the current relay state).
func (p *RealPublisher) PublishRelay(event RelayEvent) error {
	payload, err := FormatRelayPayload(event)
	if err != nil {
		return fmt.Errorf("format relay payload: %w", err)
	}
	return p.send(pendingMsg{topic: TopicRelay, payload: payload, qos: 1, retained: true})
}

// PublishReading sends a sensor sample (QoS 0, not retained).
func (p *RealPublisher) PublishReading(event ReadingEvent) error {
	payload, err := FormatReadingPayload(event)
	if err != nil {
		return fmt.Errorf("format sensor payload: %w", err)
	}
	return p.send(pendingMsg{topic: TopicSensor, payload: payload})
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(msg pendingMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.pending.add(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush replays queued messages after a (re)connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.pending.take()
	p.mu.Unlock()

	if dropped > 0 {
		log.Printf("mqtt: %d queued messages were dropped while offline", dropped)
	}
	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: replaying %d queued messages", len(msgs))
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay: %v", err)
		}
	}
}
