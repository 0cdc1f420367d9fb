package config

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

// RedisOptions builds client options from the environment.  REDIS_URL
// (redis:// or rediss://) wins when it parses; otherwise REDIS_HOST and
// REDIS_PORT, then REDIS_ADDR, then localhost:6379 are used together with
// REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func RedisOptions() *redis.Options {
	if raw := envStr("REDIS_URL", ""); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err == nil {
			return opts
		}
		log.Printf("redis: ignoring REDIS_URL: %v", err)
	}

	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = net.JoinHostPort(host, port)
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: envStr("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
	}
	if envBool("REDIS_TLS", false) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewRedisClient returns nil when the server does not answer a ping; the
// response cache and the rate limiter are then disabled.
func NewRedisClient() *redis.Client {
	client := redis.NewClient(RedisOptions())
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis: ping %s: %v", client.Options().Addr, err)
		_ = client.Close()
		return nil
	}
	return client
}
