package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/redis/go-redis/v9"
)

// Resolver loads the permission names granted to a user.
type Resolver interface {
	Permissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// DBResolver reads permissions through the user's roles.
type DBResolver struct {
	uows *database.Factory
}

func NewDBResolver(uows *database.Factory) *DBResolver {
	return &DBResolver{uows: uows}
}

func (r *DBResolver) Permissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	uow := r.uows.New(ctx)
	defer uow.Close()
	return uow.Roles.GetPermissionNames(userID)
}

const cacheKeyPrefix = "authz:permissions:"

// CachedResolver keeps resolved permissions in redis for ttl. A nil client
// disables caching.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(userID uuid.UUID) string {
	return cacheKeyPrefix + userID.String()
}

func (r *CachedResolver) Permissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if r.client == nil || r.ttl <= 0 {
		return r.next.Permissions(ctx, userID)
	}

	raw, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	switch {
	case err == nil:
		var perms []string
		if err := json.Unmarshal(raw, &perms); err == nil {
			return perms, nil
		}
		r.logger.Warn("discarding malformed permission cache entry", "user_id", userID)
	case !errors.Is(err, redis.Nil):
		// Redis trouble degrades to a database read.
		r.logger.Warn("permission cache read failed", "user_id", userID, "error", err)
	}

	perms, err := r.next.Permissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(perms); err == nil {
		if err := r.client.Set(ctx, cacheKey(userID), data, r.ttl).Err(); err != nil {
			r.logger.Warn("permission cache write failed", "user_id", userID, "error", err)
		}
	}
	return perms, nil
}

// Invalidate drops the cached permissions of userID.
func (r *CachedResolver) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidating permissions of %s: %w", userID, err)
	}
	return nil
}
