package cache

import (
	"testing"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
)

func TestParamsKeyStable(t *testing.T) {
	a := Params{Skip: 0, Limit: 20, Status: "AUDITED", OrderBy: "-created_at"}
	b := Params{OrderBy: "-created_at", Status: "AUDITED", Limit: 20}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
	c := a
	c.Skip = 20
	if a.Key() == c.Key() {
		t.Fatal("different pages must not share a key")
	}
}

func TestGetIsIdempotent(t *testing.T) {
	qc := New()
	key := Params{Limit: 20}.Key()
	qc.Set(key, &Entry{Orders: []entity.SalesOrder{{ID: 1}}, Total: 1})

	first, ok := qc.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	second, ok := qc.Get(key)
	if !ok || first != second {
		t.Fatal("consecutive gets should return the same entry")
	}
	if _, ok := qc.Get(Params{Limit: 50}.Key()); ok {
		t.Fatal("other key must miss")
	}
}

func TestInvalidate(t *testing.T) {
	qc := New()
	key := Params{Limit: 20}.Key()
	qc.Set(key, &Entry{Total: 3})
	qc.Invalidate()
	if e, ok := qc.Get(key); ok || e != nil {
		t.Fatal("entry should be gone after invalidate")
	}
}

func TestSingleSlotLastWriteWins(t *testing.T) {
	qc := New()
	k1, k2 := Params{Limit: 20}.Key(), Params{Limit: 20, Skip: 20}.Key()
	qc.Set(k1, &Entry{Total: 1})
	qc.Set(k2, &Entry{Total: 2})
	if _, ok := qc.Get(k1); ok {
		t.Fatal("first key should have been evicted")
	}
	if e, ok := qc.Get(k2); !ok || e.Total != 2 {
		t.Fatal("second key should be cached")
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	qc := New()
	k1, k2 := Params{Status: "DRAFT"}.Key(), Params{Status: "AUDITED"}.Key()

	slow := qc.Begin(k1)
	fast := qc.Begin(k2)

	if !qc.Commit(fast, &Entry{Total: 2}) {
		t.Fatal("latest request should commit")
	}
	if qc.Commit(slow, &Entry{Total: 1}) {
		t.Fatal("older request must be discarded")
	}
	if e, _ := qc.Get(k2); e == nil || e.Total != 2 {
		t.Fatal("stale response overwrote the slot")
	}
}

func TestInvalidateDuringFetch(t *testing.T) {
	qc := New()
	key := Params{Limit: 20}.Key()
	tk := qc.Begin(key)
	qc.Invalidate()
	if qc.Current(tk) {
		t.Fatal("ticket should be stale after invalidate")
	}
	if qc.Commit(tk, &Entry{Total: 9}) {
		t.Fatal("response that raced a mutation must not be cached")
	}
	if _, ok := qc.Peek(); ok {
		t.Fatal("slot should stay empty")
	}
}

func TestServeSupersedesOtherPendingKey(t *testing.T) {
	qc := New()
	cached, other := Params{Status: "AUDITED"}.Key(), Params{Status: "DRAFT"}.Key()
	qc.Set(cached, &Entry{Total: 2})

	tk := qc.Begin(other)
	if _, ok := qc.Serve(cached); !ok {
		t.Fatal("expected hit")
	}
	if qc.Commit(tk, &Entry{Total: 1}) {
		t.Fatal("fetch for another key must be discarded after a hit")
	}
	if e, _ := qc.Get(cached); e == nil || e.Total != 2 {
		t.Fatal("late response replaced the served entry")
	}

	// 同 key 的在途请求不受影响
	same := qc.Begin(cached)
	qc.Serve(cached)
	if !qc.Current(same) {
		t.Fatal("hit on the same key must not retire its own fetch")
	}
}
