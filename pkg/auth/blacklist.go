package auth

import (
	"context"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/cache"
)

const revokedKeyPrefix = "campaigndesk:jwt:revoked:"

// TokenBlacklist remembers logged-out and idle-expired tokens until they
// would have expired anyway. Tokens are stored by digest only.
type TokenBlacklist struct {
	cache *cache.Client
}

func NewTokenBlacklist(cache *cache.Client) *TokenBlacklist {
	return &TokenBlacklist{cache: cache}
}

// Add revokes token for ttl; a non-positive ttl is a no-op
func (b *TokenBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.cache.Set(ctx, revokedKeyPrefix+tokenDigest(token), "1", ttl)
}

func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return b.cache.Exists(ctx, revokedKeyPrefix+tokenDigest(token))
}
