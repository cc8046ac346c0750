// Package redisstore implements a settings store in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cvrt-gmbh/mucapture/settings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix is prepended to all setting keys.
const KeyPrefix = "mucapture:settings:"

// Store keeps each setting as a string key.
type Store struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

var _ settings.Store = (*Store)(nil)

// NewClient returns a client for the server at addr.
func NewClient(addr string, db int) *redis.Client {
	opts := &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MaxRetries:   3,
	}
	return redis.NewClient(opts)
}

// New returns a store using client. An empty prefix selects KeyPrefix.
func New(client *redis.Client, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = KeyPrefix
	}
	return &Store{client: client, prefix: prefix, log: log.Named("redisstore")}
}

// Ping checks the connection, logging the round trip time.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	opts := s.client.Options()
	start := time.Now()
	err := s.client.Ping(ctx).Err()
	elapsed := time.Since(start)
	if err != nil {
		s.log.Warn("connection failed", zap.String("addr", opts.Addr), zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return fmt.Errorf("ping: %w", err)
	}
	s.log.Info("connection established", zap.String("addr", opts.Addr), zap.Int("db", opts.DB), zap.Duration("ping_rtt", elapsed))
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get: %w", err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
