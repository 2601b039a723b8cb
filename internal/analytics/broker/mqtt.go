// Package broker provides durable broker drivers for the event bus.
package broker

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds paho waits for in-flight messages
)

// MQTTConfig configures the MQTT broker driver.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// QoS for published events. At-least-once (1) pairs with the warehouse's
	// idempotent upsert keyed by event ID.
	QoS byte
}

// MQTTDriver ships events to an MQTT broker. It implements analytics.BrokerDriver;
// the message key becomes the trailing topic segment.
type MQTTDriver struct {
	cfg    MQTTConfig
	client mqtt.Client
	log    *zap.Logger
}

// NewMQTTDriver creates an MQTT driver. Connect must be called before Send.
func NewMQTTDriver(cfg MQTTConfig, log *zap.Logger) *MQTTDriver {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	return &MQTTDriver{
		cfg:    cfg,
		client: mqtt.NewClient(opts),
		log:    log,
	}
}

// Connect establishes the broker session.
func (d *MQTTDriver) Connect(ctx context.Context) error {
	token := d.client.Connect()
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("connecting to MQTT broker %s: %w", d.cfg.BrokerURL, err)
	}
	d.log.Info("connected to MQTT broker", zap.String("broker", d.cfg.BrokerURL))
	return nil
}

// Send publishes one keyed message to destination/key.
func (d *MQTTDriver) Send(ctx context.Context, destination, key string, payload []byte) error {
	if !d.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	topic := destination + "/" + key
	token := d.client.Publish(topic, d.cfg.QoS, false, payload)
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the broker session.
func (d *MQTTDriver) Disconnect() error {
	d.client.Disconnect(disconnectQuiesce)
	d.log.Info("disconnected from MQTT broker", zap.String("broker", d.cfg.BrokerURL))
	return nil
}

// waitToken awaits token completion bounded by both the publish timeout and the
// caller's context.
func waitToken(ctx context.Context, token mqtt.Token) error {
	deadline := publishTimeout
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(ctxDeadline); remaining < deadline {
			deadline = remaining
		}
	}
	if !token.WaitTimeout(deadline) {
		return fmt.Errorf("timed out after %s", deadline)
	}
	return token.Error()
}
