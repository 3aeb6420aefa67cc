// Package redisstore provides a Redis-backed session store.
//
// The snapshot is a JSON blob under a single key. Every write is announced
// on a pub/sub channel so that other processes holding the same session key
// observe the change, mirroring what a cross-tab storage event does in a
// browser. Each store instance carries an origin ID and skips messages it
// published itself.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	goSession "github.com/kvistad/goSession"
	"github.com/redis/go-redis/v9"
)

// ErrNilClient is returned when the store is constructed without a client.
var ErrNilClient = errors.New("redis client required")

const (
	defaultKey           = "gosession:session"
	defaultChannelSuffix = ":updates"
)

// Config controls key layout and snapshot lifetime.
type Config struct {
	// Key is the Redis key holding the snapshot. Defaults to
	// "gosession:session". Applications with multiple independent sessions
	// must use distinct keys.
	Key string
	// Channel is the pub/sub channel announcing snapshot changes. Defaults
	// to Key + ":updates".
	Channel string
	// TTL expires the snapshot when > 0. Zero keeps it until cleared.
	TTL time.Duration
}

// envelope is the published update message. Origin identifies the writing
// store instance so it can ignore its own broadcasts.
type envelope struct {
	Origin string            `json:"origin"`
	Data   goSession.Content `json:"data"`
}

// Store is a Redis implementation of [goSession.Store].
type Store struct {
	goSession.StoreEvents

	client  redis.UniversalClient
	key     string
	channel string
	ttl     time.Duration
	origin  string

	mu          sync.Mutex
	lastPayload string

	pubsub *redis.PubSub
	wg     sync.WaitGroup
	once   sync.Once
}

// New constructs the store and starts its update subscriber. Callers must
// Close the store to stop the subscriber.
func New(client redis.UniversalClient, cfg Config) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.Channel == "" {
		cfg.Channel = cfg.Key + defaultChannelSuffix
	}
	if cfg.TTL < 0 {
		return nil, errors.New("negative TTL")
	}

	s := &Store{
		client:  client,
		key:     cfg.Key,
		channel: cfg.Channel,
		ttl:     cfg.TTL,
		origin:  uuid.NewString(),
	}

	s.pubsub = client.Subscribe(context.Background(), s.channel)
	// Force the subscription to be established before New returns so a
	// Persist on another instance immediately after is not missed.
	if _, err := s.pubsub.Receive(context.Background()); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	s.wg.Add(1)
	go s.listen()

	return s, nil
}

func (s *Store) listen() {
	defer s.wg.Done()

	for msg := range s.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Print("redisstore: discarding malformed update message")
			continue
		}
		if env.Origin == s.origin {
			continue
		}

		data, err := json.Marshal(env.Data)
		if err == nil {
			s.setLastPayload(string(data))
		}
		if env.Data == nil {
			env.Data = goSession.Content{}
		}
		s.EmitUpdated(env.Data)
	}
}

// Persist writes the snapshot and announces the change to other processes.
// Writing a payload identical to the last known one is not announced,
// matching storage-event semantics where only value changes notify.
func (s *Store) Persist(ctx context.Context, data goSession.Content) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	s.announce(ctx, string(payload), data)
	return nil
}

// Restore reads the snapshot, returning an empty mapping when none exists.
func (s *Store) Restore(ctx context.Context) (goSession.Content, error) {
	payload, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		s.setLastPayload("")
		return goSession.Content{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}

	var data goSession.Content
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if data == nil {
		data = goSession.Content{}
	}

	s.setLastPayload(payload)
	return data, nil
}

// Clear deletes the snapshot and announces the wipe.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	s.announce(ctx, "{}", goSession.Content{})
	return nil
}

// Close stops the update subscriber. The store must not be used afterwards.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Store) announce(ctx context.Context, payload string, data goSession.Content) {
	s.mu.Lock()
	changed := payload != s.lastPayload
	s.lastPayload = payload
	s.mu.Unlock()

	if !changed {
		return
	}

	msg, err := json.Marshal(envelope{Origin: s.origin, Data: data})
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.channel, msg).Err(); err != nil {
		// The write itself succeeded; peers will reconcile on next read.
		log.Print("redisstore: update announcement failed")
	}
}

func (s *Store) setLastPayload(payload string) {
	s.mu.Lock()
	s.lastPayload = payload
	s.mu.Unlock()
}
