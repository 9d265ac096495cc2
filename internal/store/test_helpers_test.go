package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/roach88/palabria/internal/model"
)

// testEpoch is the mock clock's starting time in every store test.
var testEpoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// createTestStore creates a store in a temp dir with a mock clock and
// deterministic batch tokens.
func createTestStore(t *testing.T) (*Store, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(testEpoch)

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clock), WithBatchGenerator(NewSequenceGenerator("")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// createTestUser inserts a user and fails the test on error.
func createTestUser(t *testing.T, s *Store, username string) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username)
	if err != nil {
		t.Fatalf("CreateUser(%q) failed: %v", username, err)
	}
	return u
}

// appendTestEvent appends a single event and returns its seq.
func appendTestEvent(t *testing.T, s *Store, userID int64, kind model.EventKind, value *float64) int64 {
	t.Helper()
	seq, err := s.AppendEvent(context.Background(), model.UsageEvent{
		UserID: userID,
		Kind:   kind,
		Value:  value,
	})
	if err != nil {
		t.Fatalf("AppendEvent(%s) failed: %v", kind, err)
	}
	return seq
}
