package service

import (
	"context"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"go.uber.org/zap"
)

func TestSessionStoreGet(t *testing.T) {
	st := NewSessionStore(nil, config.SessionConfig{}, zap.NewNop())

	a := st.Get("u1", "")
	if a.TableID != DefaultTableID {
		t.Errorf("table id = %s", a.TableID)
	}
	if st.Get("u1", DefaultTableID) != a {
		t.Error("same user and table should share a session")
	}
	if st.Get("u1", "tab-2") == a || st.Get("u2", "") == a {
		t.Error("sessions must be isolated per user and table")
	}
	if st.Len() != 3 {
		t.Errorf("len = %d", st.Len())
	}
}

func TestSessionStoreIdleExpiry(t *testing.T) {
	st := NewSessionStore(nil, config.SessionConfig{IdleTTL: 300 * time.Millisecond}, zap.NewNop())
	active := st.Get("u1", "")
	idle := st.Get("u2", "")

	// 持续访问的会话不断续期
	for i := 0; i < 3; i++ {
		time.Sleep(150 * time.Millisecond)
		if st.Get("u1", "") != active {
			t.Fatalf("active session expired after %d touches", i+1)
		}
	}
	if st.Len() != 1 {
		t.Errorf("len = %d, want 1", st.Len())
	}
	if st.Get("u2", "") == idle {
		t.Error("idle session should be recreated")
	}
}

func TestSessionStoreEvictsLeastRecentlyUsed(t *testing.T) {
	st := NewSessionStore(nil, config.SessionConfig{MaxSessions: 2}, zap.NewNop())
	first := st.Get("u1", "")
	second := st.Get("u2", "")
	st.Get("u1", "")
	st.Get("u3", "")

	if st.Len() != 2 {
		t.Fatalf("len = %d", st.Len())
	}
	if st.Get("u1", "") != first {
		t.Error("recently used session should survive eviction")
	}
	if st.Get("u2", "") == second {
		t.Error("least recently used session should be evicted")
	}
}

func TestInvalidateAllClearsEverySession(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Seed(draftOrder(item(1, "M-1", 2)))
	other := env.svcs.Sessions.Get("another-user", "")

	for _, s := range []*TableSession{env.sess, other} {
		if _, err := s.Request(context.Background(), TableQuery{}); err != nil {
			t.Fatalf("request: %v", err)
		}
	}
	env.svcs.Sessions.InvalidateAll()
	for _, s := range []*TableSession{env.sess, other} {
		if _, ok := s.Cache().Peek(); ok {
			t.Errorf("session %s still cached", s.UserID)
		}
	}
}
