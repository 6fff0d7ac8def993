package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/stim-relay/internal/logger"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTConfig configures an MQTTSource.
type MQTTConfig struct {
	Broker   string // e.g. tcp://127.0.0.1:1883
	ClientID string
	Topic    string
	QoS      byte
	Label    string
}

// MQTTSource subscribes to a topic and triggers when a message payload
// matches the label. Auto-reconnect is off: a lost connection ends the run.
//
// While the relay is firing at most one trigger is held; further matches
// are dropped.
type MQTTSource struct {
	cfg MQTTConfig
	log logger.Logger

	client   paho.Client
	triggers chan struct{}
	lost     chan struct{}
	lostOnce sync.Once
}

// NewMQTTSource creates a source for cfg. Nothing is dialled until Connect.
func NewMQTTSource(cfg MQTTConfig, log logger.Logger) *MQTTSource {
	return &MQTTSource{
		cfg:      cfg,
		log:      log,
		triggers: make(chan struct{}, 1),
		lost:     make(chan struct{}),
	}
}

func (s *MQTTSource) String() string {
	return fmt.Sprintf("mqtt %s topic=%s label=%q", s.cfg.Broker, s.cfg.Topic, s.cfg.Label)
}

// Connect connects to the broker and subscribes.
func (s *MQTTSource) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Warn("mqtt connection lost", logger.Error(err))
			s.markLost()
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("%w: mqtt connect to %s: timeout", ErrConnection, s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt connect to %s: %w", ErrConnection, s.cfg.Broker, err)
	}

	sub := client.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		s.handle(msg.Payload())
	})
	if !sub.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(250)
		return fmt.Errorf("%w: mqtt subscribe %s: timeout", ErrConnection, s.cfg.Topic)
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(250)
		return fmt.Errorf("%w: mqtt subscribe %s: %w", ErrConnection, s.cfg.Topic, err)
	}

	s.client = client
	s.log.Info("subscribed", logger.String("broker", s.cfg.Broker), logger.String("topic", s.cfg.Topic))
	return nil
}

// handle runs on paho's callback goroutine.
func (s *MQTTSource) handle(payload []byte) {
	if !Match(string(payload), s.cfg.Label) {
		return
	}
	select {
	case s.triggers <- struct{}{}:
	default:
		s.log.Debug("trigger dropped, one already pending")
	}
}

func (s *MQTTSource) markLost() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// WaitForTrigger blocks until a matching message arrives (true), or the
// connection is lost or closed (false).
// A cancelled ctx reports false even when a trigger is pending.
func (s *MQTTSource) WaitForTrigger(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	select {
	case <-s.triggers:
		return ctx.Err() == nil, nil
	case <-s.lost:
		return false, nil
	case <-ctx.Done():
		return false, nil
	}
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.markLost()
	return nil
}
