package config

// This file defines the Redis client constructor.  Redis backs the token
// bucket rate limiter on the auth routes.  If the server cannot be reached
// during startup the constructor returns nil and callers degrade gracefully
// by disabling rate limiting.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings.  Host and Port take precedence
// over Addr when both are set.
type RedisConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT"`
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"       envDefault:"0"`
	TLS      bool   `env:"TLS"      envDefault:"false"`
}

// Address resolves the host:port the client dials.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	if c.Addr == "" {
		return "localhost:6379"
	}
	return c.Addr
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  The returned client is nil if a connection cannot be established.
func NewRedisClient(c RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.Address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
