package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Web5design/MediaCrusher/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec := domain.ReplyRecord{
		ID:        "rec_1",
		MentionID: "t1_a",
		Author:    "alice",
		Outcome:   domain.OutcomeDone,
		Hash:      "abc123",
		Reply:     "Done!",
		CreatedAt: time.Now(),
	}
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Get(ctx, "rec_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MentionID != "t1_a" || got.Outcome != domain.OutcomeDone || got.Hash != "abc123" {
		t.Errorf("record = %+v, want t1_a/done/abc123", got)
	}
}

func TestRecord_AssignsID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, domain.ReplyRecord{
		MentionID: "t1_b",
		Outcome:   domain.OutcomeFetchError,
		Reply:     "sorry",
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].ID == "" {
		t.Error("Record should assign an ID when absent")
	}
}

func TestRecent_OrderAndLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		rec := domain.ReplyRecord{
			MentionID: "t1_x",
			Outcome:   domain.OutcomeDone,
			Reply:     "r",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if !records[0].CreatedAt.After(records[2].CreatedAt) {
		t.Error("Recent should return newest first")
	}
}

func TestGet_NotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "rec_missing")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestStats(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	outcomes := []domain.Outcome{
		domain.OutcomeDone, domain.OutcomeDone, domain.OutcomeFetchError,
	}
	for _, o := range outcomes {
		if err := store.Record(ctx, domain.ReplyRecord{MentionID: "t1_x", Outcome: o, Reply: "r"}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[domain.OutcomeDone] != 2 {
		t.Errorf("done count = %d, want 2", stats[domain.OutcomeDone])
	}
	if stats[domain.OutcomeFetchError] != 1 {
		t.Errorf("fetch_error count = %d, want 1", stats[domain.OutcomeFetchError])
	}
}
