package store

import (
	"context"

	"github.com/civitasgis/ageo-edge/internal/types"
)

// mockQueueStore is a compile-time check that the QueueStore interface can be
// implemented outside the package.
type mockQueueStore struct{}

var _ QueueStore = (*mockQueueStore)(nil)

func (m *mockQueueStore) Put(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) (string, error) {
	return "", nil
}
func (m *mockQueueStore) Get(ctx context.Context, id string) (*types.QueueRecord, error) {
	return nil, nil
}
func (m *mockQueueStore) List(ctx context.Context, filter ListFilter) ([]types.QueueRecord, error) {
	return nil, nil
}
func (m *mockQueueStore) GetAttachments(ctx context.Context, parentID string) ([]types.Attachment, error) {
	return nil, nil
}
func (m *mockQueueStore) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockQueueStore) MarkAttempt(ctx context.Context, id string, attemptErr string) error {
	return nil
}
func (m *mockQueueStore) CountPending(ctx context.Context) (int64, error) {
	return 0, nil
}
func (m *mockQueueStore) Stats(ctx context.Context) (*types.QueueStats, error) {
	return nil, nil
}
func (m *mockQueueStore) Close() error {
	return nil
}
