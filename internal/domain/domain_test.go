package domain

import (
	"errors"
	"testing"
	"time"
)

// ─── Action Tests ───────────────────────────────────────────────────────────

func TestCadence_Valid(t *testing.T) {
	tests := []struct {
		cadence Cadence
		valid   bool
	}{
		{CadenceDaily, true},
		{CadenceWeekly, true},
		{CadenceMilestone, true},
		{"hourly", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.cadence), func(t *testing.T) {
			if got := tt.cadence.Valid(); got != tt.valid {
				t.Errorf("Cadence(%q).Valid() = %v, want %v", tt.cadence, got, tt.valid)
			}
		})
	}
}

func TestActionDefinition_Cooldown(t *testing.T) {
	if got := (ActionDefinition{CooldownMinutes: 5}).Cooldown(); got != 5*time.Minute {
		t.Errorf("Cooldown() = %v, want 5m", got)
	}
	if got := (ActionDefinition{}).Cooldown(); got != 0 {
		t.Errorf("unset Cooldown() = %v, want 0", got)
	}
	if got := (ActionDefinition{CooldownMinutes: -3}).Cooldown(); got != 0 {
		t.Errorf("negative Cooldown() = %v, want 0", got)
	}
}

// ─── State Tests ────────────────────────────────────────────────────────────

func TestNewProgressionState(t *testing.T) {
	s := NewProgressionState()
	if s.Level != 1 || s.TotalPoints != 0 {
		t.Errorf("NewProgressionState() = level %d, points %d", s.Level, s.TotalPoints)
	}
	if s.LastActionTimestamps == nil {
		t.Error("LastActionTimestamps must be non-nil")
	}
}

func TestProgressionState_CloneDoesNotAlias(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewProgressionState()
	s.LastActionTimestamps["add-expense"] = at

	c := s.Clone()
	c.LastActionTimestamps["add-income"] = at
	c.TotalPoints = 99

	if _, ok := s.LastActionTimestamps["add-income"]; ok {
		t.Error("Clone shares the timestamp map")
	}
	if s.TotalPoints != 0 {
		t.Error("Clone shares scalar fields")
	}
	if !c.LastActionTimestamps["add-expense"].Equal(at) {
		t.Error("Clone lost existing timestamps")
	}
}

func TestLedgerBook_HasEntry(t *testing.T) {
	b := NewLedgerBook()
	if b.HasEntry("achievement:first_transaction") {
		t.Error("empty book reports an entry")
	}
	b.Entries = append(b.Entries, LedgerEntry{Key: "achievement:first_transaction", Source: SourceAchievement})
	if !b.HasEntry("achievement:first_transaction") {
		t.Error("HasEntry missed a journaled key")
	}
	if b.State.Level != 1 {
		t.Errorf("NewLedgerBook level = %d, want 1", b.State.Level)
	}
}

// ─── Identity Tests ─────────────────────────────────────────────────────────

func TestStaticIdentity(t *testing.T) {
	if id, ok := StaticIdentity("u1").UserID(); !ok || id != "u1" {
		t.Errorf("StaticIdentity(u1) = %q, %v", id, ok)
	}
	if _, ok := StaticIdentity("").UserID(); ok {
		t.Error("empty StaticIdentity must be signed out")
	}
}

func TestSentinelErrors_Distinct(t *testing.T) {
	errs := []error{
		ErrUnknownAction, ErrRemoteUnavailable, ErrProgressionNotFound,
		ErrStorageCorruption, ErrPushQueueFull, ErrInvalidAction,
	}
	for i, a := range errs {
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}
