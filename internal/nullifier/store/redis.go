package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zerotrust/pkg/domain"
)

const keyPrefix = "zt:nullifier:"

// Redis records nullifiers with SETNX. Keys never expire: a consumed
// nullifier stays consumed.
type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Insert(ctx context.Context, value domain.NullifierValue, at time.Time) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+string(value), at.UnixMilli(), 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx nullifier: %w", err)
	}
	return ok, nil
}
