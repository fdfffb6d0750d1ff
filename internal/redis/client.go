package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Conn describes one Redis endpoint. The lock client and the asynq task
// queue share it.
type Conn struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func (c Conn) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	}
}

// AsynqOpt returns the same endpoint in the form asynq clients and servers
// expect.
func (c Conn) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// NewRedisClient connects and pings, failing fast when Redis is unreachable.
func NewRedisClient(ctx context.Context, c Conn) (*redis.Client, error) {
	rdb := redis.NewClient(c.options())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", c.Addr, err)
	}

	return rdb, nil
}
