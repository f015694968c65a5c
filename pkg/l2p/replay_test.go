package l2p

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeReplayFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.dump")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Expected dump file, got error: %v", err)
	}
	return path
}

// TestReplayPoll tests chunked reading of a recorded feed.
func TestReplayPoll(t *testing.T) {
	path := writeReplayFile(t, "a 1\nb 2\nc 3\nd 4\ne 5\n")

	r, err := NewReplay(ReplayConfig{Path: path, LinesPerCall: 2}, nil)
	if err != nil {
		t.Fatalf("Expected replay, got error: %v", err)
	}
	defer r.Close()

	ctx := context.Background()

	payloads, err := r.Poll(ctx)
	if err != nil {
		t.Fatalf("Expected first chunk, got error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("Expected 1 payload, got %d", len(payloads))
	}
	if string(payloads[0].Data) != "a 1\nb 2\n" {
		t.Errorf("Expected first two lines, got %q", payloads[0].Data)
	}
	if r.Offset() != 8 {
		t.Errorf("Expected offset 8, got %d", r.Offset())
	}

	payloads, err = r.Poll(ctx)
	if err != nil {
		t.Fatalf("Expected second chunk, got error: %v", err)
	}
	if string(payloads[0].Data) != "c 3\nd 4\n" {
		t.Errorf("Expected middle two lines, got %q", payloads[0].Data)
	}

	payloads, err = r.Poll(ctx)
	if err != nil {
		t.Fatalf("Expected final chunk, got error: %v", err)
	}
	if string(payloads[0].Data) != "e 5\n" {
		t.Errorf("Expected last line, got %q", payloads[0].Data)
	}
}

// TestReplayEndOfFeed tests that exhaustion is reported as ErrEndOfFeed
// with a stable offset, poll after poll.
func TestReplayEndOfFeed(t *testing.T) {
	path := writeReplayFile(t, "a 1\nb 2\n")

	r, err := NewReplay(ReplayConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("Expected replay, got error: %v", err)
	}
	defer r.Close()

	ctx := context.Background()

	if _, err := r.Poll(ctx); err != nil {
		t.Fatalf("Expected data, got error: %v", err)
	}
	end := r.Offset()

	for i := 0; i < 3; i++ {
		payloads, err := r.Poll(ctx)
		if !errors.Is(err, ErrEndOfFeed) {
			t.Fatalf("Expected ErrEndOfFeed, got %v", err)
		}
		if len(payloads) != 0 {
			t.Errorf("Expected no payloads at end of feed, got %d", len(payloads))
		}
		if r.Offset() != end {
			t.Errorf("Expected offset to stay at %d, got %d", end, r.Offset())
		}
	}
}

// TestReplayPartialFinalLine tests that a dump ending mid-write still
// yields its last record.
func TestReplayPartialFinalLine(t *testing.T) {
	path := writeReplayFile(t, "a 1\nb 2")

	r, err := NewReplay(ReplayConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("Expected replay, got error: %v", err)
	}
	defer r.Close()

	ctx := context.Background()

	payloads, err := r.Poll(ctx)
	if err != nil {
		t.Fatalf("Expected data, got error: %v", err)
	}
	if string(payloads[0].Data) != "a 1\nb 2\n" {
		t.Errorf("Expected terminated final line, got %q", payloads[0].Data)
	}
	if r.Offset() != 7 {
		t.Errorf("Expected offset 7 (bytes in file), got %d", r.Offset())
	}

	if _, err := r.Poll(ctx); !errors.Is(err, ErrEndOfFeed) {
		t.Errorf("Expected ErrEndOfFeed after partial line, got %v", err)
	}
}

// TestReplayReset tests that Reset keeps the replay's place.
func TestReplayReset(t *testing.T) {
	path := writeReplayFile(t, "a 1\nb 2\nc 3\n")

	r, err := NewReplay(ReplayConfig{Path: path, LinesPerCall: 1}, nil)
	if err != nil {
		t.Fatalf("Expected replay, got error: %v", err)
	}
	defer r.Close()

	ctx := context.Background()

	if _, err := r.Poll(ctx); err != nil {
		t.Fatalf("Expected data, got error: %v", err)
	}
	before := r.Offset()

	if err := r.Reset(ctx); err != nil {
		t.Fatalf("Expected no-op reset, got error: %v", err)
	}
	if r.Offset() != before {
		t.Errorf("Expected offset %d after reset, got %d", before, r.Offset())
	}

	payloads, err := r.Poll(ctx)
	if err != nil {
		t.Fatalf("Expected data after reset, got error: %v", err)
	}
	if string(payloads[0].Data) != "b 2\n" {
		t.Errorf("Expected replay to resume at second line, got %q", payloads[0].Data)
	}
}

// TestReplayClosed tests use-after-Close and a missing file.
func TestReplayClosed(t *testing.T) {
	path := writeReplayFile(t, "a 1\n")

	r, err := NewReplay(ReplayConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("Expected replay, got error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Expected no error from Close, got: %v", err)
	}
	if _, err := r.Poll(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	if _, err := NewReplay(ReplayConfig{Path: filepath.Join(t.TempDir(), "missing.dump")}, nil); err == nil {
		t.Error("Expected error for missing dump file")
	}
}
