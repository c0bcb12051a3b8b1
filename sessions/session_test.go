package sessions

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sess Session
		want error
	}{
		{name: "valid", sess: Session{ExpiresAt: now.Add(time.Minute)}},
		{name: "no expiry", sess: Session{}},
		{name: "revoked", sess: Session{Revoked: true, ExpiresAt: now.Add(time.Hour)}, want: ErrSessionRevoked},
		{name: "expired", sess: Session{ExpiresAt: now.Add(-time.Second)}, want: ErrSessionExpired},
		{name: "expires exactly now", sess: Session{ExpiresAt: now}, want: ErrSessionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sess.Validate(now); !errors.Is(got, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	id := NewID()
	got, err := ParseID("  " + id + " ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("want %s, got %s", id, got)
	}

	for _, raw := range []string{"", "   ", "not-a-session", "507f1f77bcf86cd799439011"} {
		if _, err := ParseID(raw); !errors.Is(err, ErrMalformedSessionID) {
			t.Fatalf("ParseID(%q): want ErrMalformedSessionID, got %v", raw, err)
		}
	}
}

func TestProjection(t *testing.T) {
	s := &Session{ID: "s", UserID: "u", Device: DeviceInfo{Platform: "ios"}}
	p := s.Projection()
	if p.Roles == nil {
		t.Fatalf("projection roles must be a non-nil slice")
	}
	if p.SessionID != "s" || p.UserID != "u" || p.Device.Platform != "ios" {
		t.Fatalf("unexpected projection: %+v", p)
	}
}

func TestClone(t *testing.T) {
	s := &Session{ID: "s", Roles: []string{"buyer"}}
	cp := s.Clone()
	cp.Roles[0] = "admin"
	if s.Roles[0] != "buyer" {
		t.Fatalf("clone shares roles backing array")
	}
	if !cp.HasRole("admin") || s.HasRole("admin") {
		t.Fatalf("HasRole mismatch")
	}
}
