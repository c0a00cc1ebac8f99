package usecase

import (
	"context"
	"time"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/internal/service/cache"
)

// MaxSubscriptionTTL bounds how stale a follower list may be.
const MaxSubscriptionTTL = 30 * time.Second

// SubscriptionResolver is a read-through cache over the relational
// subscription source.
type SubscriptionResolver struct {
	source drepo.SubscriptionSource
	cache  *cache.TTLCache[[]models.FollowerConfig]
	ttl    time.Duration
}

func NewSubscriptionResolver(source drepo.SubscriptionSource, ttl time.Duration) *SubscriptionResolver {
	if ttl <= 0 || ttl > MaxSubscriptionTTL {
		ttl = MaxSubscriptionTTL
	}
	return &SubscriptionResolver{
		source: source,
		cache:  cache.NewTTLCache[[]models.FollowerConfig](),
		ttl:    ttl,
	}
}

func (r *SubscriptionResolver) Followers(ctx context.Context, masterID string) ([]models.FollowerConfig, error) {
	list, err := r.cache.GetOrLoad(masterID, r.ttl, func() ([]models.FollowerConfig, error) {
		return r.source.Followers(ctx, masterID)
	})
	if err != nil {
		return nil, err
	}
	return append([]models.FollowerConfig(nil), list...), nil
}

// Invalidate forgets the cached followers of a master.
func (r *SubscriptionResolver) Invalidate(masterID string) {
	r.cache.Delete(masterID)
}

var _ drepo.SubscriptionSource = (*SubscriptionResolver)(nil)
