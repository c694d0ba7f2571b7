package connectors

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
)

// RedisCheckpoint keeps the checkpoint in a redis hash, for deployments
// where the poller's host filesystem is not durable.
type RedisCheckpoint struct {
	rdb *redis.Client
	key string
}

func NewRedisCheckpoint(cfg config.RedisConfig) (*RedisCheckpoint, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisCheckpoint{rdb: rdb, key: cfg.Key}, nil
}

func (c *RedisCheckpoint) Load() (Ckpt, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	vals, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return Ckpt{}, false, err
	}
	raw, ok := vals["block"]
	if !ok {
		return Ckpt{}, false, nil
	}
	block, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Ckpt{}, false, err
	}
	ts, _ := strconv.ParseInt(vals["ts"], 10, 64)
	return Ckpt{LastBlock: block, Timestamp: ts}, true, nil
}

func (c *RedisCheckpoint) Save(ckpt Ckpt) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return c.rdb.HSet(ctx, c.key,
		"block", strconv.FormatInt(ckpt.LastBlock, 10),
		"ts", strconv.FormatInt(ckpt.Timestamp, 10),
	).Err()
}

func (c *RedisCheckpoint) Close() error {
	return c.rdb.Close()
}

// OpenCheckpoint builds the configured checkpoint backend.
func OpenCheckpoint(cfg config.CheckpointConfig) (Checkpoint, error) {
	if cfg.Backend == "redis" {
		return NewRedisCheckpoint(cfg.Redis)
	}
	return NewFileCheckpoint(cfg.Path)
}
