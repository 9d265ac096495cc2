package engine

import (
	"fmt"
	"time"
)

// SessionPolicy holds the idle heuristic and clamp bounds used to turn a
// login_ts and its latest heartbeat into a session duration.
type SessionPolicy struct {
	// IdleGrace is the longest gap between the last heartbeat and the
	// reconciling call for which the session is taken to end at the heartbeat.
	IdleGrace time.Duration

	// IdleSlack is added to IdleGrace to absorb heartbeat jitter.
	IdleSlack time.Duration

	// MinDuration is the floor applied to every recorded session.
	MinDuration time.Duration

	// MaxDuration is the cap applied to every recorded session.
	MaxDuration time.Duration
}

// DefaultSessionPolicy returns 30m grace, 5s slack, 10s floor and 12h cap.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		IdleGrace:   30 * time.Minute,
		IdleSlack:   5 * time.Second,
		MinDuration: 10 * time.Second,
		MaxDuration: 12 * time.Hour,
	}
}

// Validate checks the policy bounds.
func (p SessionPolicy) Validate() error {
	if p.IdleGrace < 0 || p.IdleSlack < 0 {
		return fmt.Errorf("idle grace and slack must not be negative (grace=%s, slack=%s)", p.IdleGrace, p.IdleSlack)
	}
	if p.MinDuration <= 0 {
		return fmt.Errorf("min session duration must be positive, got %s", p.MinDuration)
	}
	if p.MaxDuration < p.MinDuration {
		return fmt.Errorf("max session duration %s is below min %s", p.MaxDuration, p.MinDuration)
	}
	return nil
}

// EndTime picks the session end in epoch seconds.
//
// If the last heartbeat is within grace+slack of now, the session ended at
// the heartbeat. Otherwise (or with no heartbeat) it ended at now.
func (p SessionPolicy) EndTime(heartbeat *float64, now float64) float64 {
	if heartbeat != nil && now-*heartbeat <= (p.IdleGrace+p.IdleSlack).Seconds() {
		return *heartbeat
	}
	return now
}

// Idle reports whether a session whose last sign of life was the login or
// the given heartbeat has been silent for longer than grace+slack at now.
func (p SessionPolicy) Idle(login float64, heartbeat *float64, now float64) bool {
	last := login
	if heartbeat != nil {
		last = max(last, *heartbeat)
	}
	return now-last > (p.IdleGrace + p.IdleSlack).Seconds()
}

// Clamp bounds a raw duration in seconds: negatives become 0, then the
// result is raised to MinDuration and lowered to MaxDuration.
func (p SessionPolicy) Clamp(seconds float64) float64 {
	seconds = max(seconds, 0)
	seconds = max(seconds, p.MinDuration.Seconds())
	return min(seconds, p.MaxDuration.Seconds())
}

// Duration returns the clamped duration in seconds of a session that began
// at login, given its latest heartbeat (nil if none) and the reconcile time.
func (p SessionPolicy) Duration(login float64, heartbeat *float64, now float64) float64 {
	return p.Clamp(p.EndTime(heartbeat, now) - login)
}

// epochSeconds converts t to the float epoch seconds carried by login_ts
// and heartbeat events.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
