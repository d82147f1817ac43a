package audit

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/nerrad567/graychat-core/internal/infrastructure/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryRepo struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memoryRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestRecorder_FlushesOnShutdown(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, logging.Discard(), 8)

	for i := 0; i < 5; i++ {
		rec.Record(ActionLogin, EntityUser, "u1", "u1", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx) // returns after flushing

	if got := repo.count(); got != 5 {
		t.Errorf("flushed %d entries, want 5", got)
	}
	if repo.entries[0].Source != "api" {
		t.Errorf("Source = %q, want api", repo.entries[0].Source)
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, logging.Discard(), 2)

	for i := 0; i < 10; i++ {
		rec.Record(ActionLogin, EntityUser, "u1", "u1", nil) // must not block
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	if got := repo.count(); got != 2 {
		t.Errorf("stored %d entries, want queue size 2", got)
	}
}

func TestRecorder_RunStopsOnCancel(t *testing.T) {
	rec := NewRecorder(&memoryRepo{}, logging.Discard(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(ActionLogin, EntityUser, "", "", nil)
}
