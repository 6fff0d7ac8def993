package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/stim-relay/internal/logger"
)

// RedisConfig configures a RedisSource.
type RedisConfig struct {
	Addr        string // e.g. localhost:6379
	Password    string
	DB          int
	Channel     string
	Label       string
	DialTimeout time.Duration // default 5s
}

// RedisSource subscribes to a pub/sub channel and triggers when a message
// matches the label. Messages are filtered as they arrive; while the relay
// is firing at most one trigger is held and further matches are dropped.
type RedisSource struct {
	cfg RedisConfig
	log logger.Logger

	mu       sync.Mutex
	client   *redis.Client
	pubsub   *redis.PubSub
	triggers chan struct{}
	ended    chan struct{}
}

// NewRedisSource creates a source for cfg. Nothing is dialled until Connect.
func NewRedisSource(cfg RedisConfig, log logger.Logger) *RedisSource {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &RedisSource{cfg: cfg, log: log}
}

func (s *RedisSource) String() string {
	return fmt.Sprintf("redis %s channel=%s label=%q", s.cfg.Addr, s.cfg.Channel, s.cfg.Label)
}

// Connect pings the server and subscribes. The subscription is confirmed
// before returning so no trigger published afterwards is missed.
func (s *RedisSource) Connect(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:        s.cfg.Addr,
		Password:    s.cfg.Password,
		DB:          s.cfg.DB,
		DialTimeout: s.cfg.DialTimeout,
		MaxRetries:  -1, // no command retries
	})

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("%w: redis ping %s: %w", ErrConnection, s.cfg.Addr, err)
	}

	pubsub := client.Subscribe(ctx, s.cfg.Channel)
	if _, err := pubsub.Receive(pingCtx); err != nil {
		pubsub.Close()
		client.Close()
		return fmt.Errorf("%w: redis subscribe %s: %w", ErrConnection, s.cfg.Channel, err)
	}

	triggers := make(chan struct{}, 1)
	ended := make(chan struct{})
	go s.forward(pubsub.Channel(), triggers, ended)

	s.mu.Lock()
	s.client = client
	s.pubsub = pubsub
	s.triggers = triggers
	s.ended = ended
	s.mu.Unlock()

	s.log.Info("subscribed", logger.String("addr", s.cfg.Addr), logger.String("channel", s.cfg.Channel))
	return nil
}

// forward filters msgs by label into triggers until the subscription is
// closed.
func (s *RedisSource) forward(msgs <-chan *redis.Message, triggers chan<- struct{}, ended chan<- struct{}) {
	defer close(ended)
	for msg := range msgs {
		if !Match(msg.Payload, s.cfg.Label) {
			continue
		}
		select {
		case triggers <- struct{}{}:
		default:
			s.log.Debug("trigger dropped, one already pending")
		}
	}
}

// WaitForTrigger blocks until a matching message arrives (true) or the
// subscription is closed (false). A cancelled ctx reports false even when a
// trigger is pending.
func (s *RedisSource) WaitForTrigger(ctx context.Context) (bool, error) {
	s.mu.Lock()
	triggers, ended := s.triggers, s.ended
	s.mu.Unlock()
	if triggers == nil {
		return false, fmt.Errorf("source: not connected")
	}
	if ctx.Err() != nil {
		return false, nil
	}

	select {
	case <-triggers:
		return ctx.Err() == nil, nil
	case <-ended:
		// A trigger forwarded just before the end still counts.
		select {
		case <-triggers:
			return ctx.Err() == nil, nil
		default:
			return false, nil
		}
	case <-ctx.Done():
		return false, nil
	}
}

// Close ends the subscription and closes the client.
func (s *RedisSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			firstErr = err
		}
		s.pubsub = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.client = nil
	}
	return firstErr
}
