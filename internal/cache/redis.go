package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/conversation-service/config"
)

type Client struct {
	Cli *redis.Client
}

func NewRedis(cfg *config.Config) (*Client, error) {
	r := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{Cli: r}, nil
}

func (c *Client) Close() error {
	return c.Cli.Close()
}

func (c *Client) SetPresence(ctx context.Context, userID string, online bool) error {
	if c == nil || c.Cli == nil {
		return nil
	}
	val := "0"
	if online {
		val = "1"
	}
	return c.Cli.Set(ctx, "presence:"+userID, val, 0).Err()
}

func (c *Client) GetPresence(ctx context.Context, userID string) (bool, error) {
	s, err := c.Cli.Get(ctx, "presence:"+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s == "1", nil
}
