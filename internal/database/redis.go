package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/config"
)

// NewRedisClient creates the client carrying the audit queue and reports any
// backlog left by a previous run, which the persist worker drains on start.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}

	pipe := rdb.Pipeline()
	pending := pipe.LLen(pingCtx, config.WorkerKey.PersistRelayEventsQueue)
	dead := pipe.LLen(pingCtx, config.WorkerKey.DeadLetterQueue)
	if _, err := pipe.Exec(pingCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to read audit queue lengths")
	}

	event := log.Info()
	if dead.Val() > 0 {
		event = log.Warn()
	}
	event.
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int64("audit_backlog", pending.Val()).
		Int64("dead_letters", dead.Val()).
		Msg("Redis connected")

	return rdb, nil
}
