// Package idempotency reserves client-supplied Idempotency-Key values in
// Redis so a retried booking replays the first result instead of booking
// twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInProgress = errors.New("a request with this idempotency key is still in progress")
	ErrInvalidKey = errors.New("idempotency key must be 1-255 printable characters")
)

const (
	pendingValue = "pending"
	donePrefix   = "done:"

	// pendingTTL bounds how long a crashed request can block its key.
	pendingTTL = 2 * time.Minute
)

// Reservation is the state of a key after Begin.
type Reservation struct {
	// Acquired is true when the caller owns the key and must call Complete
	// or Release.
	Acquired bool
	// ResultID is the id recorded by Complete for an earlier request.
	ResultID string
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewStore keeps completed keys for ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, prefix: "idem:"}
}

// Key scopes a client key to an operation and a user so two users cannot
// collide on the same value.
func Key(operation, userID, clientKey string) string {
	return operation + ":" + userID + ":" + clientKey
}

func ValidateKey(k string) error {
	if len(k) == 0 || len(k) > 255 {
		return ErrInvalidKey
	}
	for _, r := range k {
		if r < 0x21 || r > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

// Begin reserves key. It returns Acquired when the key was free, the stored
// result id when an earlier request completed, or ErrInProgress while another
// request holds it.
func (s *Store) Begin(ctx context.Context, key string) (Reservation, error) {
	k := s.prefix + key
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, k, pendingValue, pendingTTL).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return Reservation{Acquired: true}, nil
		}

		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; try to take it again.
			continue
		}
		if err != nil {
			return Reservation{}, fmt.Errorf("read idempotency key: %w", err)
		}
		if strings.HasPrefix(val, donePrefix) {
			return Reservation{ResultID: strings.TrimPrefix(val, donePrefix)}, nil
		}
		return Reservation{}, ErrInProgress
	}
	return Reservation{}, ErrInProgress
}

// Complete records resultID for key and keeps it for the store TTL.
func (s *Store) Complete(ctx context.Context, key, resultID string) error {
	if err := s.client.Set(ctx, s.prefix+key, donePrefix+resultID, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees key after a failed request so the client can retry.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
