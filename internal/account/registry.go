// Package account provides the in-memory registry of synthetic account
// profiles driving transaction generation.
//
// Design rationale: profiles exist only to give generated transactions
// realistic per-account correlation (balances that drift, transaction counts
// that only grow, a 5-minute activity window), so an in-memory map is the
// right store. Unlike the data it feeds downstream, the registry must not
// grow without bound: capacity is fixed at construction and the least
// recently active profiles are evicted once it fills.
package account

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// DefaultCapacity bounds the registry when no explicit capacity is given.
const DefaultCapacity = 10_000

// activityWindow is the trailing window for the 5-minute frequency counter.
const activityWindow = 5 * time.Minute

// reuseProbability is how often generation targets an existing account
// rather than minting a new one. High reuse simulates realistic recurrence.
const reuseProbability = 0.85

// Profile is the mutable state of one synthetic account. All mutation happens
// through Registry methods; callers outside this package treat the fields as
// read-only snapshot sources.
type Profile struct {
	ID              string
	TotalLoans      float64
	TotalDeposits   float64
	NumTransactions int
	NPLFlag         bool
	LastSeen        time.Time

	// recent holds the timestamps inside the trailing activity window,
	// oldest first. Pruned on every RecordActivity call.
	recent []time.Time
}

// Registry is a thread-safe, capacity-bounded account store.
type Registry struct {
	mu sync.Mutex

	profiles map[string]*Profile
	ids      []string // iteration order for random selection
	capacity int
	nextID   int // numeric suffix for the next minted account
}

// New creates an empty registry holding at most capacity profiles.
// A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Registry{
		profiles: make(map[string]*Profile),
		capacity: capacity,
		nextID:   1000,
	}
}

// ─── Selection ────────────────────────────────────────────────────────────────

// GetOrCreate returns the profile a new transaction should be generated
// against. With high probability it reuses an existing account, weighted
// toward recently active ones; otherwise it mints a fresh profile, evicting
// the least recently active entries if the registry is full.
//
// The caller supplies the random source so generation stays reproducible
// under a fixed seed.
func (reg *Registry) GetOrCreate(r *rand.Rand, now time.Time) *Profile {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if len(reg.ids) > 0 && r.Float64() < reuseProbability {
		return reg.pickExisting(r)
	}
	return reg.create(now)
}

// Create always mints a fresh profile, regardless of reuse probability.
// The loan-fraud pattern uses this: that archetype is an account with a thin
// history, which an established profile can never become again.
func (reg *Registry) Create(now time.Time) *Profile {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.create(now)
}

// pickExisting selects an account via a two-candidate tournament: draw two
// profiles uniformly and keep the one seen more recently. This biases
// selection toward active accounts without maintaining a sorted index.
// Must be called with the lock held.
func (reg *Registry) pickExisting(r *rand.Rand) *Profile {
	a := reg.profiles[reg.ids[r.Intn(len(reg.ids))]]
	b := reg.profiles[reg.ids[r.Intn(len(reg.ids))]]
	if b.LastSeen.After(a.LastSeen) {
		return b
	}
	return a
}

// create mints a new profile with zeroed balances, evicting stale profiles
// first if the registry is at capacity. Must be called with the lock held.
func (reg *Registry) create(now time.Time) *Profile {
	if len(reg.ids) >= reg.capacity {
		reg.evictStale()
	}

	p := &Profile{
		ID:       fmt.Sprintf("ACC_%06d", reg.nextID),
		LastSeen: now,
	}
	reg.nextID++
	reg.profiles[p.ID] = p
	reg.ids = append(reg.ids, p.ID)
	return p
}

// evictStale removes the least recently active 1% of profiles (at least one)
// so that eviction cost amortises instead of running on every insert.
// Must be called with the lock held.
func (reg *Registry) evictStale() {
	n := reg.capacity / 100
	if n < 1 {
		n = 1
	}

	for ; n > 0 && len(reg.ids) > 0; n-- {
		oldest := 0
		for i, id := range reg.ids {
			if reg.profiles[id].LastSeen.Before(reg.profiles[reg.ids[oldest]].LastSeen) {
				oldest = i
			}
		}
		delete(reg.profiles, reg.ids[oldest])
		reg.ids[oldest] = reg.ids[len(reg.ids)-1]
		reg.ids = reg.ids[:len(reg.ids)-1]
	}
}

// ─── Activity tracking ────────────────────────────────────────────────────────

// RecordActivity registers one transaction at now against the profile,
// after first injecting `injected` synthetic timestamps spread across the
// trailing window (fraud patterns use this to force a high 5-minute
// frequency). It returns the resulting in-window transaction count.
func (reg *Registry) RecordActivity(r *rand.Rand, p *Profile, now time.Time, injected int) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	windowStart := now.Add(-activityWindow)

	// Drop timestamps that have aged out of the window.
	kept := p.recent[:0]
	for _, ts := range p.recent {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	p.recent = kept

	for i := 0; i < injected; i++ {
		offset := time.Duration(r.Int63n(int64(activityWindow)))
		p.recent = append(p.recent, now.Add(-offset))
	}

	p.recent = append(p.recent, now)
	p.LastSeen = now
	return len(p.recent)
}

// ─── Post-generation update ───────────────────────────────────────────────────

// Apply records the outcome of one generated transaction on the profile:
// the lifetime transaction count grows by one and the loan/deposit balances
// take a small random-walk step, clamped to stay non-negative.
func (reg *Registry) Apply(r *rand.Rand, p *Profile, now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p.NumTransactions++
	p.TotalLoans = clampNonNegative(p.TotalLoans * (1 + (r.Float64()-0.5)*0.02))
	p.TotalDeposits = clampNonNegative(p.TotalDeposits * (1 + (r.Float64()-0.5)*0.02))
	p.LastSeen = now
}

// Force overwrites the balance-sheet fields a fraud pattern dictates.
// Loan fraud, for example, requires an account with very high loans, a thin
// history and a non-performing flag.
func (reg *Registry) Force(p *Profile, loans, deposits float64, numTransactions int, npl bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	p.TotalLoans = clampNonNegative(loans)
	p.TotalDeposits = clampNonNegative(deposits)
	p.NumTransactions = numTransactions
	p.NPLFlag = npl
}

// Count returns the number of live profiles.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.profiles)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
