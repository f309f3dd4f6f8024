package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mr1hm/go-panic-alerts/internal/config"
)

// Topics the patrol app subscribes to.
const (
	TopicAlertEvents = "alerts/events"
	TopicAlertNew    = "alerts/new"
)

// Publisher delivers an event to the push channel. Failures are reported to
// the dispatcher, which logs them; they never fail the lifecycle operation
// that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// MQTTPublisher pushes alert events to the broker the patrol apps listen on.
type MQTTPublisher struct {
	client mqtt.Client
}

func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("timeout connecting to MQTT broker %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("error connecting to MQTT broker: %w", err)
	}

	return &MQTTPublisher{client: client}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshaling event: %w", err)
	}

	topics := []string{TopicAlertEvents}
	if ev.Type == EventAlertCreated {
		topics = append(topics, TopicAlertNew)
	}

	for _, topic := range topics {
		token := p.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("timeout publishing to %s", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("error publishing to %s: %w", topic, err)
		}
	}
	return nil
}

func (p *MQTTPublisher) Disconnect() {
	p.client.Disconnect(250)
}
