package interview

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterDuplicateIsBenign(t *testing.T) {
	store := NewMemoryStatusStore()
	m := NewRecordManager(store, nil)
	ctx := context.Background()

	first := FileRecord{Key: "k1", TargetBasename: "PSFU_INT-L_KK_anon"}
	outcome, err := m.Register(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Created {
		t.Fatalf("first outcome = %v, want Created", outcome)
	}

	// A racing second registration must not error and must not overwrite.
	outcome, err = m.Register(ctx, FileRecord{Key: "k1", TargetBasename: "changed"})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != AlreadyExists {
		t.Fatalf("second outcome = %v, want AlreadyExists", outcome)
	}
	stored, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.TargetBasename != first.TargetBasename {
		t.Errorf("duplicate registration overwrote the record: %q", stored.TargetBasename)
	}
}

func TestRegisterEmptyKey(t *testing.T) {
	m := NewRecordManager(NewMemoryStatusStore(), nil)
	if _, err := m.Register(context.Background(), FileRecord{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRegisterDefaultsStatus(t *testing.T) {
	m := NewRecordManager(NewMemoryStatusStore(), nil)
	ctx := context.Background()
	if _, err := m.Register(ctx, FileRecord{Key: "k1"}); err != nil {
		t.Fatal(err)
	}
	rec, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ProcessingStatus != StatusNew {
		t.Errorf("status = %q, want %q", rec.ProcessingStatus, StatusNew)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	m := NewRecordManager(NewMemoryStatusStore(), nil)
	ctx := context.Background()
	if _, err := m.Register(ctx, FileRecord{Key: "k1"}); err != nil {
		t.Fatal(err)
	}

	rec, _ := m.Get(ctx, "k1")
	if err := m.MarkExtractionSubmitted(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec, _ = m.Get(ctx, "k1")
	if rec.ProcessingStatus != StatusExtractionSubmitted {
		t.Fatalf("status = %q", rec.ProcessingStatus)
	}
	if rec.AudioExtractionAttempts != 1 {
		t.Errorf("AudioExtractionAttempts = %d, want 1", rec.AudioExtractionAttempts)
	}

	if err := m.MarkProcessed(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec, _ = m.Get(ctx, "k1")
	if rec.ProcessingStatus != StatusProcessed {
		t.Fatalf("status = %q", rec.ProcessingStatus)
	}
	if rec.SDHSTransferAttempts != 1 {
		t.Errorf("SDHSTransferAttempts = %d, want 1", rec.SDHSTransferAttempts)
	}
}

func TestTransitionsAreForwardOnly(t *testing.T) {
	m := NewRecordManager(NewMemoryStatusStore(), nil)
	ctx := context.Background()

	// Skipping the submitted state is rejected.
	if err := m.MarkProcessed(ctx, FileRecord{Key: "k1", ProcessingStatus: StatusNew}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkProcessed from new: error = %v, want ErrInvalidState", err)
	}
	// Repeating a transition is rejected.
	if err := m.MarkExtractionSubmitted(ctx, FileRecord{Key: "k1", ProcessingStatus: StatusExtractionSubmitted}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkExtractionSubmitted from submitted: error = %v, want ErrInvalidState", err)
	}
	// Processed is terminal until archival.
	if err := m.MarkExtractionSubmitted(ctx, FileRecord{Key: "k1", ProcessingStatus: StatusProcessed}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkExtractionSubmitted from processed: error = %v, want ErrInvalidState", err)
	}
}

func TestKnownKeys(t *testing.T) {
	m := NewRecordManager(NewMemoryStatusStore(), nil)
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		if _, err := m.Register(ctx, FileRecord{Key: key}); err != nil {
			t.Fatal(err)
		}
	}
	known, err := m.KnownKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !known["a"] || !known["b"] || known["c"] {
		t.Errorf("known = %v", known)
	}
}
