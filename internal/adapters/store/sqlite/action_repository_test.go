package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/action"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

// newTestRepository returns an initialized repository backed by a temp file.
// Its clock advances one millisecond per call so creation order is deterministic.
func newTestRepository(t *testing.T) (*ActionRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actions.db")
	repo := openRepository(t, path)
	return repo, path
}

func openRepository(t *testing.T, path string) *ActionRepository {
	t.Helper()
	conn, err := NewConnection(path)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	repo := NewActionRepository(conn)

	var mu sync.Mutex
	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}

	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func enqueue(t *testing.T, repo *ActionRepository, typ action.Type, data string) *action.QueuedAction {
	t.Helper()
	a, err := repo.Enqueue(context.Background(), action.NewAction{Type: typ, Data: json.RawMessage(data)})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return a
}

func TestActionRepository_InitializeIdempotent(t *testing.T) {
	repo, _ := newTestRepository(t)
	for i := 0; i < 3; i++ {
		if err := repo.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize() call %d error = %v", i, err)
		}
	}
}

func TestActionRepository_Enqueue(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a, err := repo.Enqueue(ctx, action.NewAction{
		Type:     action.TypeUpdatePPE,
		Data:     json.RawMessage(`{"id":"ppe-1","status":"flagged"}`),
		Metadata: json.RawMessage(`{"source":"inspection-form"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if a.ID == "" {
		t.Error("expected generated ID")
	}
	if a.Status != action.StatusPending || a.RetryCount != 0 {
		t.Errorf("new action = %s/%d, want pending/0", a.Status, a.RetryCount)
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored action")
	}
	if got.Type != action.TypeUpdatePPE {
		t.Errorf("Type = %q", got.Type)
	}
	if string(got.Data) != `{"id":"ppe-1","status":"flagged"}` {
		t.Errorf("Data = %s", got.Data)
	}
	if string(got.Metadata) != `{"source":"inspection-form"}` {
		t.Errorf("Metadata = %s", got.Metadata)
	}
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, a.CreatedAt)
	}
}

func TestActionRepository_EnqueueValidation(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   action.NewAction
		wantErr error
	}{
		{"missing type", action.NewAction{Data: json.RawMessage(`{}`)}, domainErrors.ErrActionTypeMissing},
		{"invalid data", action.NewAction{Type: "x", Data: json.RawMessage(`{oops`)}, domainErrors.ErrInvalidPayload},
		{"invalid metadata", action.NewAction{Type: "x", Metadata: json.RawMessage(`[`)}, domainErrors.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Enqueue(ctx, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	counts, _ := repo.Counts(ctx)
	if counts.Outstanding() != 0 {
		t.Errorf("rejected actions were stored: %+v", counts)
	}
}

func TestActionRepository_EnqueueEmptyDataDefaults(t *testing.T) {
	repo, _ := newTestRepository(t)
	a := enqueue(t, repo, action.TypeMarkAllRead, "")

	got, _ := repo.Get(context.Background(), a.ID)
	if string(got.Data) != "{}" {
		t.Errorf("Data = %q, want {}", got.Data)
	}
	if got.Metadata != nil {
		t.Errorf("Metadata = %q, want nil", got.Metadata)
	}
}

func TestActionRepository_GetMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	got, err := repo.Get(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

func TestActionRepository_ListPendingFIFO(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first := enqueue(t, repo, action.TypeCreateInspection, `{"n":1}`)
	second := enqueue(t, repo, action.TypeUpdatePPE, `{"n":2}`)
	third := enqueue(t, repo, action.TypeAddNotification, `{"n":3}`)
	done := enqueue(t, repo, action.TypeMarkAllRead, `{}`)

	if err := repo.Update(ctx, second.ID, action.Failed(3, "boom")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := repo.Update(ctx, done.ID, action.Completed()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}

	wantIDs := []string{first.ID, second.ID, third.ID}
	if len(pending) != len(wantIDs) {
		t.Fatalf("ListPending() returned %d actions, want %d", len(pending), len(wantIDs))
	}
	for i, id := range wantIDs {
		if pending[i].ID != id {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].ID, id)
		}
	}
	if pending[1].Status != action.StatusFailed {
		t.Errorf("failed action listed with status %s", pending[1].Status)
	}
}

func TestActionRepository_ListPendingSameInstant(t *testing.T) {
	repo, _ := newTestRepository(t)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, enqueue(t, repo, "custom", `{}`).ID)
	}

	pending, err := repo.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	for i, a := range pending {
		if a.ID != ids[i] {
			t.Fatalf("pending[%d] = %s, want %s (insertion order)", i, a.ID, ids[i])
		}
	}
}

func TestActionRepository_UpdatePartial(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	a := enqueue(t, repo, action.TypeUpdatePPE, `{"id":"ppe-1"}`)

	if err := repo.Update(ctx, a.ID, action.Retry(1, "timeout")); err != nil {
		t.Fatalf("Update(retry) error = %v", err)
	}
	got, _ := repo.Get(ctx, a.ID)
	if got.Status != action.StatusPending || got.RetryCount != 1 || got.LastError != "timeout" {
		t.Errorf("after retry = %s/%d/%q", got.Status, got.RetryCount, got.LastError)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Error("UpdatedAt not advanced")
	}

	// Only status set: other fields keep their values.
	status := action.StatusFailed
	if err := repo.Update(ctx, a.ID, action.Update{Status: &status}); err != nil {
		t.Fatalf("Update(status) error = %v", err)
	}
	got, _ = repo.Get(ctx, a.ID)
	if got.Status != action.StatusFailed || got.RetryCount != 1 || got.LastError != "timeout" {
		t.Errorf("after status-only update = %s/%d/%q", got.Status, got.RetryCount, got.LastError)
	}

	if err := repo.Update(ctx, a.ID, action.Completed()); err != nil {
		t.Fatalf("Update(completed) error = %v", err)
	}
	got, _ = repo.Get(ctx, a.ID)
	if got.Status != action.StatusCompleted || got.LastError != "" {
		t.Errorf("after completion = %s/%q", got.Status, got.LastError)
	}
}

func TestActionRepository_UpdateErrors(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	err := repo.Update(ctx, "missing", action.Completed())
	if !errors.Is(err, domainErrors.ErrActionNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrActionNotFound", err)
	}
	if domainErrors.CodeOf(err) != domainErrors.CodeNotFound {
		t.Errorf("code = %q", domainErrors.CodeOf(err))
	}

	a := enqueue(t, repo, "custom", `{}`)
	bogus := action.Status("archived")
	err = repo.Update(ctx, a.ID, action.Update{Status: &bogus})
	if !errors.Is(err, domainErrors.ErrInvalidAction) {
		t.Errorf("Update(bogus status) error = %v, want ErrInvalidAction", err)
	}
}

func TestActionRepository_ClearCompleted(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	n, err := repo.ClearCompleted(ctx)
	if err != nil || n != 0 {
		t.Fatalf("ClearCompleted() on empty store = %d, %v", n, err)
	}

	a := enqueue(t, repo, "custom", `{}`)
	b := enqueue(t, repo, "custom", `{}`)
	keep := enqueue(t, repo, "custom", `{}`)
	repo.Update(ctx, a.ID, action.Completed())
	repo.Update(ctx, b.ID, action.Completed())

	n, err = repo.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ClearCompleted() removed %d, want 2", n)
	}

	if got, _ := repo.Get(ctx, a.ID); got != nil {
		t.Error("completed action still present")
	}
	if got, _ := repo.Get(ctx, keep.ID); got == nil {
		t.Error("pending action was removed")
	}
}

func TestActionRepository_ClearCompletedKeepsOutstanding(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first := enqueue(t, repo, "custom", `{"n":1}`)
	failed := enqueue(t, repo, "custom", `{"n":2}`)
	retried := enqueue(t, repo, "custom", `{"n":3}`)
	repo.Update(ctx, failed.ID, action.Failed(3, "rejected"))
	repo.Update(ctx, retried.ID, action.Retry(1, "503"))

	before, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}

	n, err := repo.ClearCompleted(ctx)
	if err != nil || n != 0 {
		t.Fatalf("ClearCompleted() = %d, %v, want 0, nil", n, err)
	}

	after, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("ListPending() = %d actions, want %d", len(after), len(before))
	}
	wantIDs := []string{first.ID, failed.ID, retried.ID}
	for i, a := range after {
		if a.ID != wantIDs[i] || a.Status != before[i].Status || a.RetryCount != before[i].RetryCount {
			t.Errorf("ListPending()[%d] = %s/%s/%d, want %s/%s/%d",
				i, a.ID, a.Status, a.RetryCount, wantIDs[i], before[i].Status, before[i].RetryCount)
		}
	}
}

func TestActionRepository_ResetFailedAndCounts(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	failed := enqueue(t, repo, "custom", `{}`)
	enqueue(t, repo, "custom", `{}`)
	done := enqueue(t, repo, "custom", `{}`)
	repo.Update(ctx, failed.ID, action.Failed(3, "rejected"))
	repo.Update(ctx, done.ID, action.Completed())

	counts, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts != (action.Counts{Pending: 1, Failed: 1, Completed: 1}) {
		t.Errorf("Counts() = %+v", counts)
	}

	n, err := repo.ResetFailed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetFailed() = %d, %v", n, err)
	}

	got, _ := repo.Get(ctx, failed.ID)
	if got.Status != action.StatusPending || got.RetryCount != 0 || got.LastError != "" {
		t.Errorf("after reset = %s/%d/%q", got.Status, got.RetryCount, got.LastError)
	}

	failedOnly, _ := repo.ListByStatus(ctx, action.StatusFailed)
	if len(failedOnly) != 0 {
		t.Errorf("ListByStatus(failed) = %d, want 0", len(failedOnly))
	}
}

func TestActionRepository_SurvivesRestart(t *testing.T) {
	repo, path := newTestRepository(t)
	ctx := context.Background()

	a := enqueue(t, repo, action.TypeCreateInspection, `{"ppe_id":"ppe-1"}`)
	repo.Update(ctx, a.ID, action.Retry(2, "503"))
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := openRepository(t, path)
	pending, err := reopened.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() after restart = %d actions, want 1", len(pending))
	}
	if pending[0].ID != a.ID || pending[0].RetryCount != 2 || pending[0].LastError != "503" {
		t.Errorf("restored action = %+v", pending[0])
	}
}

func TestActionRepository_UnavailableStore(t *testing.T) {
	conn, _ := NewConnection(filepath.Join(t.TempDir(), "actions.db"))
	repo := NewActionRepository(conn)
	ctx := context.Background()

	// Never initialized.
	_, err := repo.ListPending(ctx)
	if !domainErrors.IsStorage(err) {
		t.Errorf("ListPending() error = %v, want storage error", err)
	}
	if !errors.Is(err, domainErrors.ErrStoreUnavailable) {
		t.Errorf("error should match ErrStoreUnavailable, got %v", err)
	}

	_, err = repo.Enqueue(ctx, action.NewAction{Type: "custom"})
	if !domainErrors.IsStorage(err) {
		t.Errorf("Enqueue() error = %v, want storage error", err)
	}
}

func TestActionRepository_InitializeRetriesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	conn, err := NewConnection(filepath.Join(blocker, "actions.db"))
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	repo := NewActionRepository(conn)
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	err = repo.Initialize(ctx)
	if !errors.Is(err, domainErrors.ErrStoreUnavailable) {
		t.Fatalf("Initialize() error = %v, want ErrStoreUnavailable", err)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}
	if err := repo.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() after clearing the path error = %v", err)
	}
	enqueue(t, repo, "custom", `{}`)
}

func TestActionRepository_InitializeAfterClose(t *testing.T) {
	repo, _ := newTestRepository(t)
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := repo.Initialize(context.Background()); !domainErrors.IsStorage(err) {
		t.Errorf("Initialize() after Close error = %v, want storage error", err)
	}
}
