package config

import (
	"context"
	"fmt"
	"io"

	"github.com/cvrt-gmbh/mucapture/settings"
	"github.com/cvrt-gmbh/mucapture/settings/redisstore"
	"github.com/cvrt-gmbh/mucapture/settings/yamlstore"

	"go.uber.org/zap"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the settings store configured in c. The returned closer
// must be closed when done.
func (c *Config) OpenStore(ctx context.Context, log *zap.Logger) (settings.Store, io.Closer, error) {
	switch c.Store {
	case StoreRedis:
		s := redisstore.New(redisstore.NewClient(c.RedisAddr, c.RedisDB), "", log)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", c.RedisAddr, err)
		}
		return s, s, nil
	case StoreYAML, "":
		s, err := yamlstore.Open(c.SettingsFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("settings file", zap.String("path", s.Path()))
		return s, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", c.Store)
}
