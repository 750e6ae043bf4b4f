package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusResolved, false},
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusSuspended, true},
		{StatusAssigned, StatusResolved, false},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusSuspended, true},
		{StatusSuspended, StatusInProgress, true},
		{StatusSuspended, StatusResolved, false},
		{StatusResolved, StatusInProgress, false},
		{StatusRejected, StatusAssigned, false},
		{"bogus", StatusAssigned, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsPublicStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusRejected} {
		if IsPublicStatus(s) {
			t.Errorf("IsPublicStatus(%q) = true, want false", s)
		}
	}
	for _, s := range PublicStatuses {
		if !IsPublicStatus(s) {
			t.Errorf("IsPublicStatus(%q) = false, want true", s)
		}
	}
}

func TestUserSanitized(t *testing.T) {
	u := &User{ID: 7, Username: "mario", PasswordHash: "hash", Role: Role{Name: RoleCitizen}}
	s := u.Sanitized()
	if s.PasswordHash != "" {
		t.Error("Sanitized kept the password hash")
	}
	if u.PasswordHash != "hash" {
		t.Error("Sanitized mutated the original")
	}
	if !s.HasRole(RoleAdmin, RoleCitizen) || s.HasRole(RoleAdmin) {
		t.Error("HasRole mismatch")
	}
}
