package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/civitasgis/ageo-edge/internal/notify"
	"github.com/civitasgis/ageo-edge/internal/store"
	"github.com/civitasgis/ageo-edge/internal/types"
)

// memStore is an in-memory QueueStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	records []types.QueueRecord
	atts    map[string][]types.Attachment
	listErr error
	lists   int
}

func newMemStore() *memStore {
	return &memStore{atts: make(map[string][]types.Attachment)}
}

func (m *memStore) Put(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	if len(atts) > 0 {
		m.atts[rec.ID] = atts
	}
	return rec.ID, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*types.QueueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) List(ctx context.Context, filter store.ListFilter) ([]types.QueueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]types.QueueRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memStore) GetAttachments(ctx context.Context, parentID string) ([]types.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.atts[parentID], nil
}

func (m *memStore) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	delete(m.atts, id)
	return nil
}

func (m *memStore) MarkAttempt(ctx context.Context, id string, attemptErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Attempts++
			m.records[i].LastError = attemptErr
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) CountPending(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *memStore) Stats(ctx context.Context) (*types.QueueStats, error) {
	count, _ := m.CountPending(ctx)
	return &types.QueueStats{Pending: count}, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// scriptedSubmitter fails for the record IDs in failFor and records the order
// of attempts.
type scriptedSubmitter struct {
	mu      sync.Mutex
	order   []string
	failFor map[string]error
	block   chan struct{} // if non-nil, Submit waits on it
}

func (s *scriptedSubmitter) Submit(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, rec.ID)
	if err, ok := s.failFor[rec.ID]; ok {
		return err
	}
	return nil
}

func (s *scriptedSubmitter) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Publish(ev notify.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureNotifier) Events() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Event, len(c.events))
	copy(out, c.events)
	return out
}

func seed(t *testing.T, m *memStore, ids ...string) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range ids {
		_, err := m.Put(context.Background(), &types.QueueRecord{
			ID:        id,
			URL:       "/ageo/intData/",
			Method:    "POST",
			Kind:      types.KindForm,
			Fields:    []types.Field{{Name: "name", Value: "Ana"}},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, nil)
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

func TestPass_ReplaysInCreatedAtOrder(t *testing.T) {
	m := newMemStore()
	seed(t, m, "01", "02", "03")
	sub := &scriptedSubmitter{}
	e := NewEngine(m, sub, &captureNotifier{})

	stats, err := e.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if stats.Synced != 3 {
		t.Errorf("Synced = %d, want 3", stats.Synced)
	}

	order := sub.Order()
	if len(order) != 3 || order[0] != "01" || order[1] != "02" || order[2] != "03" {
		t.Errorf("replay order = %v, want [01 02 03]", order)
	}

	if count, _ := m.CountPending(context.Background()); count != 0 {
		t.Errorf("pending after pass = %d, want 0", count)
	}
}

func TestPass_FailedRecordStaysAndDoesNotBlockOthers(t *testing.T) {
	m := newMemStore()
	seed(t, m, "01", "02", "03")
	sub := &scriptedSubmitter{failFor: map[string]error{"02": errors.New("connection reset")}}
	n := &captureNotifier{}
	e := NewEngine(m, sub, n)

	stats, err := e.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if stats.Synced != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 synced 1 failed", stats)
	}

	// The failed record is left in place, payload untouched.
	rec, err := m.Get(context.Background(), "02")
	if err != nil {
		t.Fatalf("failed record was removed: %v", err)
	}
	if len(rec.Fields) != 1 || rec.Fields[0].Value != "Ana" {
		t.Errorf("payload changed: %+v", rec.Fields)
	}
	if rec.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", rec.Attempts)
	}

	// Notifications report what was synced and what stayed behind.
	events := n.Events()
	if len(events) != 2 {
		t.Fatalf("events = %+v, want synced and sync-failed", events)
	}
	if events[0].Type != notify.EventSynced || events[0].Count != 2 {
		t.Errorf("first event = %+v, want synced count 2", events[0])
	}
	if events[1].Type != notify.EventSyncFailed || events[1].Count != 1 {
		t.Errorf("second event = %+v, want sync-failed count 1", events[1])
	}
}

func TestPass_EmptyQueueIsCheapNoop(t *testing.T) {
	m := newMemStore()
	n := &captureNotifier{}
	e := NewEngine(m, &scriptedSubmitter{}, n)

	stats, err := e.Pass(context.Background())
	if err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if stats.Pending != 0 || stats.Synced != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(n.Events()) != 0 {
		t.Errorf("no notification expected for an empty pass, got %+v", n.Events())
	}
}

func TestPass_SecondTriggerWhileInFlightIsNoop(t *testing.T) {
	m := newMemStore()
	seed(t, m, "01")
	sub := &scriptedSubmitter{block: make(chan struct{})}
	e := NewEngine(m, sub, &captureNotifier{})

	done := make(chan *types.SyncStats, 1)
	go func() {
		stats, _ := e.Pass(context.Background())
		done <- stats
	}()

	// Wait until the first pass has read the store and is blocked in Submit.
	deadline := time.Now().Add(time.Second)
	for m.ListCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// A second trigger while one pass is in flight must not touch the store.
	stats, err := e.Pass(context.Background())
	if err != nil {
		t.Fatalf("second Pass failed: %v", err)
	}
	if !stats.Skipped {
		t.Error("second pass should be skipped")
	}

	close(sub.block)
	first := <-done
	if first.Synced != 1 {
		t.Errorf("first pass synced = %d, want 1", first.Synced)
	}

	// The store was read exactly once.
	if m.ListCalls() != 1 {
		t.Errorf("store reads = %d, want 1", m.ListCalls())
	}

	// Syncing again with nothing pending is a no-op.
	again, err := e.Pass(context.Background())
	if err != nil {
		t.Fatalf("third Pass failed: %v", err)
	}
	if again.Synced != 0 || again.Pending != 0 {
		t.Errorf("idempotence violated: %+v", again)
	}
}

func TestPass_AttachmentsAreReattached(t *testing.T) {
	m := newMemStore()
	rec := &types.QueueRecord{
		ID:        "01",
		URL:       "/ageo/fotos/",
		Method:    "POST",
		Kind:      types.KindRequestWithAttachments,
		CreatedAt: time.Now().UTC(),
	}
	atts := []types.Attachment{{ID: "a1", ParentID: "01", Field: "foto", Filename: "obra.jpg", ContentType: "image/jpeg", Data: []byte{1, 2}}}
	if _, err := m.Put(context.Background(), rec, atts); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var gotAtts int
	sub := &checkSubmitter{check: func(r *types.QueueRecord, a []types.Attachment) {
		gotAtts = len(a)
	}}
	e := NewEngine(m, sub, &captureNotifier{})

	if _, err := e.Pass(context.Background()); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if gotAtts != 1 {
		t.Errorf("attachments passed to submit = %d, want 1", gotAtts)
	}

	// Attachments are gone with their parent.
	remaining, _ := m.GetAttachments(context.Background(), "01")
	if len(remaining) != 0 {
		t.Errorf("attachments survived sync: %+v", remaining)
	}
}

type checkSubmitter struct {
	check func(*types.QueueRecord, []types.Attachment)
}

func (c *checkSubmitter) Submit(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) error {
	c.check(rec, atts)
	return nil
}

func TestPass_StoreReadFailurePropagates(t *testing.T) {
	m := newMemStore()
	m.listErr = errors.New("disk gone")
	e := NewEngine(m, &scriptedSubmitter{}, &captureNotifier{})

	if _, err := e.Pass(context.Background()); err == nil {
		t.Fatal("expected pass-level error when the store cannot be read")
	}
}
