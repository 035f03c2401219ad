package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/provider/local"
	"github.com/MrEthical07/authflow/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

type config struct {
	RedisAddr     string `env:"AUTHFLOW_REDIS_ADDR"`
	RedisPassword string `env:"AUTHFLOW_REDIS_PASSWORD"`
	Prefix        string `env:"AUTHFLOW_PREFIX"    envDefault:"authflow"`
	DeviceID      string `env:"AUTHFLOW_DEVICE_ID" envDefault:"default"`

	// JWTSecret signs session tokens. A random secret is generated when it
	// is empty, so sessions do not survive a restart.
	JWTSecret  string        `env:"AUTHFLOW_JWT_SECRET"`
	SessionTTL time.Duration `env:"AUTHFLOW_SESSION_TTL" envDefault:"1h"`

	AutoSignIn       bool `env:"AUTHFLOW_AUTO_SIGN_IN"       envDefault:"true"`
	SessionOnConfirm bool `env:"AUTHFLOW_SESSION_ON_CONFIRM" envDefault:"false"`

	MetricsAddr string     `env:"AUTHFLOW_METRICS_ADDR"`
	LogLevel    slog.Level `env:"AUTHFLOW_LOG_LEVEL" envDefault:"warn"`
	AuditLog    string     `env:"AUTHFLOW_AUDIT_LOG"`
	HistoryFile string     `env:"AUTHFLOW_HISTORY_FILE"`
}

// loadConfig reads the AUTHFLOW_* variables from environ, or from the process
// environment when environ is nil.
func loadConfig(environ map[string]string) (config, error) {
	var cfg config
	var err error
	if environ == nil {
		err = env.Parse(&cfg)
	} else {
		err = env.ParseWithOptions(&cfg, env.Options{Environment: environ})
	}
	if err != nil {
		return config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c config) controllerConfig() authflow.Config {
	cfg := authflow.DefaultConfig()
	cfg.Signup.AutoSignIn = c.AutoSignIn
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func (c config) providerConfig() local.Config {
	cfg := local.DefaultConfig()
	cfg.Prefix = c.Prefix
	cfg.DeviceID = c.DeviceID
	cfg.AutoSessionOnConfirm = c.SessionOnConfirm
	return cfg
}

func newTokenManager(cfg config, logger *slog.Logger) (*token.Manager, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		logger.Warn("AUTHFLOW_JWT_SECRET not set, using an ephemeral secret")
	}
	return token.NewManager(token.Config{
		TTL:           cfg.SessionTTL,
		SigningMethod: token.MethodHS256,
		PrivateKey:    secret,
		Issuer:        "authflow",
	})
}

// openRedis connects to the configured server, or starts an in-process
// miniredis when no address is set.
func openRedis(ctx context.Context, cfg config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		logger.Warn("AUTHFLOW_REDIS_ADDR not set, using in-process miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, func() { _ = client.Close() }, nil
}
