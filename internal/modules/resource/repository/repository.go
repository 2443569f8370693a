package repository

import (
	"context"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
)

// Repository is the resource state store. Resource rows are created and
// removed by the subscription registry; everything else only reads them and
// advances cursors.
type Repository interface {
	GetResource(ctx context.Context, key domain.Key) (*domain.Resource, error)
	ListResources(ctx context.Context, sourceType domain.SourceType) ([]*domain.Resource, error)
	ListResourceIDs(ctx context.Context, sourceType domain.SourceType) ([]string, error)
	// CompareAndSwap stores next only if the stored row still carries
	// prev.Version. On success next.Version is bumped.
	CompareAndSwap(ctx context.Context, prev, next *domain.Resource) error
}
