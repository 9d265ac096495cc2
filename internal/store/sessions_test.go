package store

import (
	"context"
	"testing"

	"github.com/roach88/palabria/internal/model"
)

func TestSessions_JoinsDurations(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "ana")

	first := appendTestEvent(t, s, u.ID, model.KindLoginTS, model.Float(1000))
	if _, err := s.CloseSession(ctx, SessionClose{UserID: u.ID, LoginSeq: first, DurationSec: 300}); err != nil {
		t.Fatalf("CloseSession() failed: %v", err)
	}
	second := appendTestEvent(t, s, u.ID, model.KindLoginTS, model.Float(5000))

	sessions, err := s.Sessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("Sessions() failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}

	if sessions[0].LoginSeq != first || !sessions[0].Closed || sessions[0].DurationSec == nil || *sessions[0].DurationSec != 300 {
		t.Errorf("sessions[0] = %+v, want closed with 300s", sessions[0])
	}
	if sessions[0].LoginAt != 1000 {
		t.Errorf("sessions[0].LoginAt = %v, want 1000", sessions[0].LoginAt)
	}
	if sessions[1].LoginSeq != second || sessions[1].Closed || sessions[1].DurationSec != nil {
		t.Errorf("sessions[1] = %+v, want open", sessions[1])
	}
}

func TestOpenSessions_OnlyLatestUnclosed(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	ana := createTestUser(t, s, "ana")
	bo := createTestUser(t, s, "bo")
	cy := createTestUser(t, s, "cy")

	// ana: older login open, latest closed -> not reported
	appendTestEvent(t, s, ana.ID, model.KindLoginTS, model.Float(1))
	latest := appendTestEvent(t, s, ana.ID, model.KindLoginTS, model.Float(2))
	if _, err := s.CloseSession(ctx, SessionClose{UserID: ana.ID, LoginSeq: latest, DurationSec: 10}); err != nil {
		t.Fatalf("CloseSession() failed: %v", err)
	}

	// bo: latest open -> reported
	boLogin := appendTestEvent(t, s, bo.ID, model.KindLoginTS, model.Float(3))

	// cy: never logged in
	_ = cy

	open, err := s.OpenSessions(ctx)
	if err != nil {
		t.Fatalf("OpenSessions() failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open = %+v, want only bo", open)
	}
	if open[0].UserID != bo.ID || open[0].LoginSeq != boLogin {
		t.Errorf("open[0] = %+v, want user %d login %d", open[0], bo.ID, boLogin)
	}
}
