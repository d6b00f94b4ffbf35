// Package mqtt publishes fired price alerts to an MQTT broker so
// dashboards and automations can react to them.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"finagent/internal/alerts"
	"finagent/internal/config"
)

// Publisher manages the broker connection and publishes one retained
// availability message plus one message per fired alert. It implements
// alerts.Notifier.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call
// [Publisher.Connect] before use.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger}
}

func (p *Publisher) availabilityTopic() string {
	return p.cfg.Topic + "/availability"
}

// Connect establishes the broker connection. autopaho reconnects in
// the background; a slow initial connection is logged, not fatal.
func (p *Publisher) Connect(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "finagent"
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			_, err := cm.Publish(ctx, &paho.Publish{
				Topic:   p.availabilityTopic(),
				Payload: []byte("online"),
				QoS:     1,
				Retain:  true,
			})
			if err != nil {
				p.logger.Warn("mqtt availability publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Close publishes offline availability and disconnects.
func (p *Publisher) Close(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	_, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	})
	if err != nil {
		p.logger.Warn("mqtt offline publish failed", "error", err)
	}
	return p.cm.Disconnect(ctx)
}

// Notify publishes the fired alert as JSON on the configured topic.
func (p *Publisher) Notify(ctx context.Context, task alerts.Task, price float64) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not connected")
	}

	payload, err := alertPayload(task, price, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.cfg.Topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("mqtt publish alert: %w", err)
	}
	p.logger.Debug("alert published to mqtt", "topic", p.cfg.Topic, "condition", task.Condition())
	return nil
}

// alertPayload renders the wire payload for one fired alert.
func alertPayload(task alerts.Task, price float64, firedAt time.Time) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"id":         task.ID,
		"symbol":     task.Symbol,
		"comparator": string(task.Comparator),
		"threshold":  task.Threshold,
		"condition":  task.Condition(),
		"price":      price,
		"fired_at":   firedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal alert payload: %w", err)
	}
	return data, nil
}
