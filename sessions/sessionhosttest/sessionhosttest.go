package sessionhosttest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/sessions"
)

// HostFactory creates a new Host instance for testing.
type HostFactory func(t *testing.T) sessions.Host

// RunSessionHostTests runs the complete Host test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Lookup_CreateThenGet", func(t *testing.T) { testCreateThenGet(t, factory) })
	t.Run("Lookup_UnknownIsNotFound", func(t *testing.T) { testUnknownIsNotFound(t, factory) })
	t.Run("Lookup_AssignsIDWhenEmpty", func(t *testing.T) { testAssignsID(t, factory) })
	t.Run("Lookup_ReturnedRecordIsIsolated", func(t *testing.T) { testReturnedRecordIsolated(t, factory) })
	t.Run("Lookup_ExpiredIsNotFound", func(t *testing.T) { testExpired(t, factory) })
	t.Run("Revoke_FlagVisibleToLookup", func(t *testing.T) { testRevoke(t, factory) })
	t.Run("Revoke_UnknownIsNotFound", func(t *testing.T) { testRevokeUnknown(t, factory) })
	t.Run("Delete_Idempotent", func(t *testing.T) { testDelete(t, factory) })
	t.Run("Concurrency_ParallelLookups", func(t *testing.T) { testParallelLookups(t, factory) })
}

func newSession(userID string, ttl time.Duration) *sessions.Session {
	return &sessions.Session{
		ID:        sessions.NewID(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Millisecond),
		Roles:     []string{"buyer"},
		Device:    sessions.DeviceInfo{UserAgent: "test-agent", Platform: "web"},
	}
}

func testCreateThenGet(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := newSession("user-1", time.Hour)
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := h.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != s.ID || got.UserID != "user-1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Fatalf("expiry mismatch: want %v got %v", s.ExpiresAt, got.ExpiresAt)
	}
	if got.Revoked {
		t.Fatalf("new session must not be revoked")
	}
	if !got.HasRole("buyer") || got.Device.Platform != "web" {
		t.Fatalf("roles/device not persisted: %+v", got)
	}
	if err := got.Validate(time.Now()); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}
}

func testUnknownIsNotFound(t *testing.T, factory HostFactory) {
	h := factory(t)
	_, err := h.GetSession(context.Background(), sessions.NewID())
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func testAssignsID(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	s := newSession("user-2", time.Hour)
	s.ID = ""
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if _, err := sessions.ParseID(s.ID); err != nil {
		t.Fatalf("assigned id is not well formed: %v", err)
	}
	if _, err := h.GetSession(ctx, s.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func testReturnedRecordIsolated(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	s := newSession("user-3", time.Hour)
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := h.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Revoked = true
	got.Roles[0] = "admin"

	again, err := h.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Revoked || again.HasRole("admin") {
		t.Fatalf("mutating a returned record leaked into the store: %+v", again)
	}
}

func testExpired(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	s := newSession("user-4", 150*time.Millisecond)
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	got, err := h.GetSession(ctx, s.ID)
	if err == nil {
		// A host may still return the record; it must then fail validation.
		if vErr := got.Validate(time.Now()); !errors.Is(vErr, sessions.ErrSessionExpired) {
			t.Fatalf("expected expired session, got record %+v", got)
		}
		return
	}
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func testRevoke(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	s := newSession("user-5", time.Hour)
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.RevokeSession(ctx, s.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err := h.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get after revoke: %v", err)
	}
	if !got.Revoked {
		t.Fatalf("expected revoked flag")
	}
	if err := got.Validate(time.Now()); !errors.Is(err, sessions.ErrSessionRevoked) {
		t.Fatalf("want ErrSessionRevoked, got %v", err)
	}
	// Revoking twice is harmless.
	if err := h.RevokeSession(ctx, s.ID); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func testRevokeUnknown(t *testing.T, factory HostFactory) {
	h := factory(t)
	err := h.RevokeSession(context.Background(), sessions.NewID())
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	s := newSession("user-6", time.Hour)
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.GetSession(ctx, s.ID); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound after delete, got %v", err)
	}
	if err := h.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func testParallelLookups(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()

	s := newSession("user-7", time.Hour)
	if err := h.CreateSession(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.GetSession(ctx, s.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("parallel get: %v", err)
	}
}
