package history

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emilyats/authmed/internal/database"
	"github.com/emilyats/authmed/internal/detection"
)

// testStore connects to the deployment named by MONGODB_TEST_URI, or skips
// when the env is not set.
func testStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set; skipping Mongo integration test")
	}
	if database.DB == nil {
		if err := database.Connect(uri); err != nil {
			t.Fatalf("connecting to MongoDB: %v", err)
		}
	}
	return &Store{}
}

func testResult() *detection.Result {
	return &detection.Result{
		Class:      "Biogesic 500mg",
		Confidence: 0.91,
		Authenticity: detection.Authenticity{
			Status:     detection.StatusAuthentic,
			Confidence: 0.85,
		},
		CroppedImageURL: "https://cdn.example.com/crops/b.jpg",
	}
}

func TestSaveIsAppendOnly(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	// Saving the same result N times creates N distinct records; there is
	// deliberately no dedup.
	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		record, err := store.Save(ctx, userID, testResult(), "")
		if err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
		ids[record.ID.Hex()] = true
		t.Cleanup(func() { store.Delete(ctx, record.ID.Hex()) })
	}
	if len(ids) != 3 {
		t.Errorf("3 saves produced %d distinct records", len(ids))
	}

	records, err := store.List(ctx, userID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("List returned %d records, want 3", len(records))
	}
}

func TestListNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		record, err := store.Save(ctx, userID, testResult(), "")
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		t.Cleanup(func() { store.Delete(ctx, record.ID.Hex()) })
		// Distinct server-assigned timestamps so the ordering is observable.
		time.Sleep(5 * time.Millisecond)
	}

	records, err := store.List(ctx, userID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].ScannedAt.Before(records[i].ScannedAt) {
			t.Errorf("records out of order: %v before %v",
				records[i-1].ScannedAt, records[i].ScannedAt)
		}
	}
}

func TestListEmptyIsNotAnError(t *testing.T) {
	store := testStore(t)

	records, err := store.List(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty slice, got %v", records)
	}
}

func TestUpdateNoteTouchesOnlyTheNote(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	record, err := store.Save(ctx, userID, testResult(), "first note")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	t.Cleanup(func() { store.Delete(ctx, record.ID.Hex()) })

	// Baseline from a round-trip so stored timestamp precision matches.
	before, err := store.Get(ctx, record.ID.Hex())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := store.UpdateNote(ctx, record.ID.Hex(), "second note"); err != nil {
		t.Fatalf("UpdateNote failed: %v", err)
	}

	got, err := store.Get(ctx, record.ID.Hex())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Note != "second note" {
		t.Errorf("note = %q, want %q", got.Note, "second note")
	}
	if got.UserID != before.UserID ||
		got.MedicineName != before.MedicineName ||
		got.Confidence != before.Confidence ||
		got.Authenticity != before.Authenticity ||
		got.AuthenticityConfidence != before.AuthenticityConfidence ||
		got.ImageURL != before.ImageURL ||
		!got.ScannedAt.Equal(before.ScannedAt) {
		t.Errorf("UpdateNote changed other fields:\nbefore %+v\nafter  %+v", before, got)
	}
}

func TestDeleteMissingRecord(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	record, err := store.Save(ctx, uuid.NewString(), testResult(), "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, record.ID.Hex()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting the same id again, or reading it back, is not-found.
	if err := store.Delete(ctx, record.ID.Hex()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete returned %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, record.ID.Hex()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete returned %v, want ErrNotFound", err)
	}

	if err := store.Delete(ctx, "not-a-hex-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("malformed id returned %v, want ErrNotFound", err)
	}
}
