package account_test

import (
	"math/rand"
	"testing"
	"time"

	"harborbank/txstream/internal/account"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

var now = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

// ─── Creation and reuse ───────────────────────────────────────────────────────

func TestGetOrCreate_FirstCallCreates(t *testing.T) {
	reg := account.New(100)
	p := reg.GetOrCreate(newRand(), now)
	if p == nil {
		t.Fatal("expected a profile")
	}
	if p.ID == "" {
		t.Error("expected a non-empty account ID")
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 profile, got %d", reg.Count())
	}
}

func TestGetOrCreate_IDFormat(t *testing.T) {
	reg := account.New(100)
	p := reg.GetOrCreate(newRand(), now)
	if len(p.ID) != len("ACC_000000") || p.ID[:4] != "ACC_" {
		t.Errorf("expected ACC_NNNNNN format, got %q", p.ID)
	}
}

func TestGetOrCreate_FavorsReuse(t *testing.T) {
	reg := account.New(10_000)
	r := newRand()

	for i := 0; i < 1000; i++ {
		reg.GetOrCreate(r, now)
	}

	// With 85% reuse the population should sit far below the call count.
	if c := reg.Count(); c > 400 {
		t.Errorf("expected heavy account reuse, got %d profiles from 1000 calls", c)
	}
}

func TestCreate_AlwaysMintsNew(t *testing.T) {
	reg := account.New(100)
	a := reg.Create(now)
	b := reg.Create(now)
	if a.ID == b.ID {
		t.Errorf("expected distinct accounts, both got %s", a.ID)
	}
}

// ─── Capacity bound ───────────────────────────────────────────────────────────

func TestRegistry_NeverExceedsCapacity(t *testing.T) {
	const capacity = 50
	reg := account.New(capacity)

	for i := 0; i < 500; i++ {
		reg.Create(now.Add(time.Duration(i) * time.Second))
	}

	if c := reg.Count(); c > capacity {
		t.Errorf("registry grew to %d profiles, capacity is %d", c, capacity)
	}
}

func TestEviction_DropsLeastRecentlyActive(t *testing.T) {
	reg := account.New(10)
	r := newRand()

	stale := reg.Create(now)
	for i := 0; i < 9; i++ {
		p := reg.Create(now.Add(time.Minute))
		reg.RecordActivity(r, p, now.Add(time.Hour), 0)
	}

	// Registry is full; the next create must evict, and the stale profile
	// is the least recently active.
	fresh := reg.Create(now.Add(2 * time.Hour))
	if fresh.ID == stale.ID {
		t.Error("expected a fresh profile, got the stale one back")
	}
	if reg.Count() > 10 {
		t.Errorf("expected at most 10 profiles, got %d", reg.Count())
	}
}

// ─── Activity window ──────────────────────────────────────────────────────────

func TestRecordActivity_CountsWindow(t *testing.T) {
	reg := account.New(10)
	r := newRand()
	p := reg.Create(now)

	if got := reg.RecordActivity(r, p, now, 0); got != 1 {
		t.Errorf("first activity: expected frequency 1, got %d", got)
	}
	if got := reg.RecordActivity(r, p, now.Add(time.Minute), 0); got != 2 {
		t.Errorf("second activity: expected frequency 2, got %d", got)
	}
}

func TestRecordActivity_PrunesOldEntries(t *testing.T) {
	reg := account.New(10)
	r := newRand()
	p := reg.Create(now)

	reg.RecordActivity(r, p, now, 0)
	reg.RecordActivity(r, p, now.Add(time.Minute), 0)

	// Ten minutes later both prior entries are outside the 5-minute window.
	if got := reg.RecordActivity(r, p, now.Add(10*time.Minute), 0); got != 1 {
		t.Errorf("expected frequency 1 after window expiry, got %d", got)
	}
}

func TestRecordActivity_InjectionForcesHighFrequency(t *testing.T) {
	reg := account.New(10)
	r := newRand()
	p := reg.Create(now)

	if got := reg.RecordActivity(r, p, now, 15); got <= 15 {
		t.Errorf("expected frequency above 15 after injection, got %d", got)
	}
}

// ─── Post-generation update ───────────────────────────────────────────────────

func TestApply_TransactionCountOnlyIncreases(t *testing.T) {
	reg := account.New(10)
	r := newRand()
	p := reg.Create(now)
	reg.Force(p, 1_000_000, 2_000_000, 100, false)

	for i := 0; i < 50; i++ {
		before := p.NumTransactions
		reg.Apply(r, p, now)
		if p.NumTransactions != before+1 {
			t.Fatalf("transaction count moved from %d to %d", before, p.NumTransactions)
		}
	}
}

func TestApply_BalancesStayNonNegative(t *testing.T) {
	reg := account.New(10)
	r := newRand()
	p := reg.Create(now)
	reg.Force(p, 10, 10, 1, false)

	for i := 0; i < 1000; i++ {
		reg.Apply(r, p, now)
		if p.TotalLoans < 0 || p.TotalDeposits < 0 {
			t.Fatalf("balance went negative: loans=%v deposits=%v", p.TotalLoans, p.TotalDeposits)
		}
	}
}

func TestForce_ClampsNegativeBalances(t *testing.T) {
	reg := account.New(10)
	p := reg.Create(now)
	reg.Force(p, -5, -5, 1, true)
	if p.TotalLoans != 0 || p.TotalDeposits != 0 {
		t.Errorf("expected clamped balances, got loans=%v deposits=%v", p.TotalLoans, p.TotalDeposits)
	}
	if !p.NPLFlag {
		t.Error("expected NPL flag to be set")
	}
}
