package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ActiveSessionsKey is the set of join codes that have a stored snapshot.
const ActiveSessionsKey = "sessions:active"

// RoomPattern matches every room channel.
const RoomPattern = "room:*"

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func SessionKey(code string) string {
	return fmt.Sprintf("session:%s", code)
}

func RoomChannel(code string) string {
	return fmt.Sprintf("room:%s", code)
}

// CodeFromRoomChannel is the inverse of RoomChannel.
func CodeFromRoomChannel(channel string) (string, bool) {
	code, ok := strings.CutPrefix(channel, "room:")
	if !ok || code == "" {
		return "", false
	}
	return code, true
}
