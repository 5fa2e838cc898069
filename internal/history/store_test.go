package history

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"groupbot/internal/domain"
	"groupbot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"), testLogger(), metrics.NewCollector())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendAndActiveHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, 1, 100, 1, domain.RoleUser, "привет"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, 1, 200, 2, domain.RoleAssistant, "здарова"); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.ActiveHistory(ctx, 1, 30)
	if err != nil {
		t.Fatalf("active history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != domain.RoleUser || entries[0].Content != "привет" {
		t.Errorf("wrong first entry: %+v", entries[0])
	}
	if entries[1].Role != domain.RoleAssistant || entries[1].Content != "здарова" {
		t.Errorf("wrong second entry: %+v", entries[1])
	}
}

func TestStore_ActiveHistoryRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Append(ctx, 1, 100, int64(i), domain.RoleUser, strings.Repeat("x", i+1)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := s.ActiveHistory(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// The window holds the newest records in chronological order.
	if len(entries[0].Content) >= len(entries[2].Content) {
		t.Errorf("expected chronological order, got %v", entries)
	}
	if len(entries[2].Content) != 10 {
		t.Errorf("expected newest entry last, got %q", entries[2].Content)
	}
}

func TestStore_ContentTruncatedToLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("ы", maxContentRunes+500)
	if err := s.Append(ctx, 1, 100, 1, domain.RoleUser, long); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ActiveHistory(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := len([]rune(entries[0].Content)); got != maxContentRunes {
		t.Errorf("expected %d runes stored, got %d", maxContentRunes, got)
	}
}

func TestStore_ResetEpochMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// First record lands in the implicit epoch 0.
	if err := s.Append(ctx, 1, 100, 1, domain.RoleUser, "old"); err != nil {
		t.Fatal(err)
	}

	e1, err := s.ResetEpoch(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if e1 != 1 {
		t.Errorf("expected epoch 1 after first reset, got %d", e1)
	}

	e2, err := s.ResetEpoch(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if e2 != 2 {
		t.Errorf("expected epoch 2 after second reset, got %d", e2)
	}
}

func TestStore_ResetClearsActiveHistoryOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, 1, 100, 1, domain.RoleUser, "before reset"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ResetEpoch(ctx, 1); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ActiveHistory(ctx, 1, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("active history must be empty after reset, got %d entries", len(entries))
	}

	// The record is tombstoned, not deleted.
	old, err := s.HistoryForEpoch(ctx, 1, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 1 || old[0].Content != "before reset" {
		t.Errorf("epoch 0 records must stay queryable, got %v", old)
	}

	if err := s.Append(ctx, 1, 100, 2, domain.RoleUser, "after reset"); err != nil {
		t.Fatal(err)
	}
	entries, err = s.ActiveHistory(ctx, 1, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Content != "after reset" {
		t.Errorf("new epoch must hold only new records, got %v", entries)
	}
}

func TestStore_ResetIsPerChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, 1, 100, 1, domain.RoleUser, "chat one"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, 2, 100, 1, domain.RoleUser, "chat two"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ResetEpoch(ctx, 1); err != nil {
		t.Fatal(err)
	}

	other, err := s.ActiveHistory(ctx, 2, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 {
		t.Errorf("reset of chat 1 must not touch chat 2, got %d entries", len(other))
	}
}

func TestStore_PurgeOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, 1, 100, 1, domain.RoleUser, "recent"); err != nil {
		t.Fatal(err)
	}

	// Backdate one record past the retention window.
	oldTS := float64(time.Now().Add(-40*24*time.Hour).UnixNano()) / 1e9
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (chat_id, user_id, message_id, role, content, timestamp, reset_epoch)
		 VALUES (1, 100, 2, 'user', 'ancient', ?, 0)`, oldTS)
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := s.PurgeOlderThan(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted record, got %d", deleted)
	}

	entries, err := s.ActiveHistory(ctx, 1, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Content != "recent" {
		t.Errorf("recent record must survive purge, got %v", entries)
	}
}

func TestStore_Healthy(t *testing.T) {
	s := newTestStore(t)
	if err := s.Healthy(context.Background()); err != nil {
		t.Errorf("expected healthy store: %v", err)
	}
}
