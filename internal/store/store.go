package store

import (
	"context"

	"github.com/civitasgis/ageo-edge/internal/types"
)

// ListFilter narrows List results. The zero value lists every pending record.
type ListFilter struct {
	URL           string
	IncludeSynced bool
	Limit         int
}

// QueueStore defines the interface contract for the durable submission queue.
// Records come back from List in created-at order, oldest first.
type QueueStore interface {
	Put(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) (string, error)
	Get(ctx context.Context, id string) (*types.QueueRecord, error)
	List(ctx context.Context, filter ListFilter) ([]types.QueueRecord, error)
	GetAttachments(ctx context.Context, parentID string) ([]types.Attachment, error)
	DeleteByID(ctx context.Context, id string) error
	MarkAttempt(ctx context.Context, id string, attemptErr string) error
	CountPending(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*types.QueueStats, error)
	Close() error
}
