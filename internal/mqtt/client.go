// Package mqtt publishes occurrence payloads to an MQTT broker.
package mqtt

import (
	"context"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/odeflow/internal/conf"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
)

const (
	componentName = "mqtt"

	// reconnectCooldown is the minimum time between manual connect attempts.
	reconnectCooldown = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// Client is the broker connection used by the sink.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Publish(ctx context.Context, topic, payload string) error
	PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error
	Disconnect()
}

type client struct {
	settings conf.MQTTSettings
	log      logger.Logger

	mu          sync.Mutex
	conn        paho.Client
	lastAttempt time.Time
}

// NewClient creates a client for the configured broker. It does not connect.
func NewClient(s conf.MQTTSettings, log logger.Logger) (Client, error) {
	if s.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.Global()
	}
	return &client{
		settings: s,
		log:      log.Module(componentName).With(logger.String("broker", s.Broker)),
	}, nil
}

// Connect dials the broker and waits until the connection is up or ctx ends.
// Attempts closer together than the reconnect cooldown are rejected.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil && c.conn.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	if since := time.Since(c.lastAttempt); !c.lastAttempt.IsZero() && since < reconnectCooldown {
		c.mu.Unlock()
		return errors.Newf("connection attempt too recent, retry in %s", (reconnectCooldown - since).Round(time.Second)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Build()
	}
	c.lastAttempt = time.Now()
	if c.conn == nil {
		c.conn = paho.NewClient(c.options())
	}
	conn := c.conn
	c.mu.Unlock()

	if err := wait(ctx, conn.Connect()); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("broker", c.settings.Broker).
			Build()
	}
	c.log.Info("connected")
	return nil
}

func (c *client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(c.settings.Broker)
	opts.SetClientID(c.settings.ClientID)
	if c.settings.Username != "" {
		opts.SetUsername(c.settings.Username)
		opts.SetPassword(c.settings.Password)
	}
	timeout := c.settings.ConnectTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("connection lost", logger.Error(err))
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		c.log.Debug("reconnecting")
	})
	return opts
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

func (c *client) Publish(ctx context.Context, topic, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, c.settings.Retain)
}

func (c *client) PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return errors.Newf("not connected to broker").
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}

	if err := wait(ctx, conn.Publish(topic, c.settings.QoS, retain, payload)); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}
	return nil
}

func (c *client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil && conn.IsConnected() {
		conn.Disconnect(disconnectQuiesce)
		c.log.Info("disconnected")
	}
}

// wait blocks until the token completes or ctx ends.
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
