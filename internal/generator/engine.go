// Package generator synthesizes banking transactions, injecting the four
// fraud archetypes at a configurable rate.
//
// Architecture:
//
//	The engine owns the process-wide transaction counter and the random
//	source, and funnels every generation call — single, batch, or streaming —
//	through one mutex. That single-writer discipline is what keeps
//	transaction IDs strictly increasing and gap-free, and account profiles
//	free of partial updates, no matter how many callers generate
//	concurrently.
//
// Pattern philosophy:
//
//	A generated transaction is pattern-consistent: every numeric field falls
//	in the range its archetype dictates, and the account snapshot it carries
//	was forced into the matching shape before the snapshot was taken.
//	Fraud records are rule-labeled synthetic data, not adversarially
//	realistic fraud.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"harborbank/txstream/internal/account"
	"harborbank/txstream/internal/domain"
)

// Relative weights for fraud-kind selection once a draw lands below the
// injection rate. Evaluated as a cumulative distribution in this order.
const (
	weightMoneyLaundering = 0.30
	weightAccountTakeover = 0.25
	weightLoanFraud       = 0.25
	// fee manipulation takes the remaining 0.20
)

// diurnalWeights shapes the normal pattern's hour-of-day draw: quiet nights,
// a morning ramp, a business-hours plateau and an evening tail.
var diurnalWeights = [24]int{
	1, 1, 1, 1, 1, 2, // 00-05
	3, 5, 7, 9, 10, 10, // 06-11
	9, 9, 9, 9, 8, 7, // 12-17
	5, 4, 3, 2, 1, 1, // 18-23
}

// offHoursList is OffHours as a slice so patterns can draw from it.
var offHoursList = []int{0, 1, 2, 3, 22, 23}

// Engine generates transactions against the account registry.
type Engine struct {
	mu       sync.Mutex
	r        *rand.Rand
	registry *account.Registry
	now      func() time.Time

	// counter is the sequence number of the next transaction. It starts at 1
	// and only ever moves forward, exactly once per Generate call.
	counter uint64
}

// Option customises an Engine at construction time.
type Option func(*Engine)

// WithSeed fixes the random source so generation is reproducible in tests.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.r = rand.New(rand.NewSource(seed)) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine backed by the given registry. Without options it
// seeds from the wall clock and uses time.Now.
func New(reg *account.Registry, opts ...Option) *Engine {
	e := &Engine{
		r:        rand.New(rand.NewSource(time.Now().UnixNano())),
		registry: reg,
		now:      time.Now,
		counter:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Generate produces one transaction, selecting the pattern from the given
// fraud-injection rate. The rate is assumed valid (0.0–1.0); configuration
// is validated where it is mutated, not on every draw.
func (e *Engine) Generate(fraudRate float64) domain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generate(fraudRate)
}

// GenerateBatch produces count transactions under a single lock acquisition,
// so a batch is contiguous in the ID sequence.
func (e *Engine) GenerateBatch(fraudRate float64, count int) []domain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	txns := make([]domain.Transaction, count)
	for i := range txns {
		txns[i] = e.generate(fraudRate)
	}
	return txns
}

// TotalGenerated returns how many transactions this engine has produced.
func (e *Engine) TotalGenerated() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter - 1
}

// ActiveAccounts returns the current registry population.
func (e *Engine) ActiveAccounts() int {
	return e.registry.Count()
}

// ─── Pattern selection ────────────────────────────────────────────────────────

// selectPattern applies the injection rate, then the fixed fraud-kind
// weights as a cumulative distribution.
func (e *Engine) selectPattern(fraudRate float64) string {
	if e.r.Float64() >= fraudRate {
		return domain.PatternNormal
	}

	d := e.r.Float64()
	switch {
	case d < weightMoneyLaundering:
		return domain.PatternMoneyLaundering
	case d < weightMoneyLaundering+weightAccountTakeover:
		return domain.PatternAccountTakeover
	case d < weightMoneyLaundering+weightAccountTakeover+weightLoanFraud:
		return domain.PatternLoanFraud
	default:
		return domain.PatternFeeManipulation
	}
}

// ─── Generation core ──────────────────────────────────────────────────────────

// generate builds one transaction. Must be called with the lock held.
func (e *Engine) generate(fraudRate float64) domain.Transaction {
	pattern := e.selectPattern(fraudRate)
	now := e.now()

	var tx domain.Transaction
	switch pattern {
	case domain.PatternMoneyLaundering:
		tx = e.moneyLaundering(now)
	case domain.PatternAccountTakeover:
		tx = e.accountTakeover(now)
	case domain.PatternLoanFraud:
		tx = e.loanFraud(now)
	case domain.PatternFeeManipulation:
		tx = e.feeManipulation(now)
	default:
		tx = e.normal(now)
	}

	// Default fee rule: 0.1% of deposits when the pattern left the fee unset.
	if tx.TransactionFees == 0 {
		tx.TransactionFees = tx.TotalDeposits * 0.001
	}

	tx.TransactionID = fmt.Sprintf("TXN_%08d", e.counter)
	e.counter++
	return tx
}

// normal produces a typical retail transaction: log-scale amount, diurnal
// hour, a known device and a quiet 5-minute window.
func (e *Engine) normal(now time.Time) domain.Transaction {
	p := e.registry.GetOrCreate(e.r, now)
	e.seedProfile(p)
	freq := e.registry.RecordActivity(e.r, p, now, 0)

	tx := e.base(p, now, freq)
	tx.TransactionAmount = math.Max(10_000, e.lognormal(13.8, 1.2))
	tx.TransactionHour = e.diurnalHour()
	tx.BiometricFailureCount = e.weightedInt([]int{0, 1, 2}, []int{85, 12, 3})
	tx.FraudType = domain.PatternNormal

	e.registry.Apply(e.r, p, now)
	return tx
}

// moneyLaundering produces a very large off-hours transaction against an
// account whose 5-minute window is flooded with synthetic activity.
func (e *Engine) moneyLaundering(now time.Time) domain.Transaction {
	p := e.registry.GetOrCreate(e.r, now)
	e.seedProfile(p)
	// Launderers cycle funds through high-deposit accounts.
	e.registry.Force(p, p.TotalLoans, e.lognormal(14.0, 1.2),
		maxInt(p.NumTransactions, 200+e.r.Intn(600)), e.r.Float64() < 0.05)

	freq := e.registry.RecordActivity(e.r, p, now, 15+e.r.Intn(11))

	tx := e.base(p, now, freq)
	tx.TransactionAmount = e.uniform(300_000_000, 1_000_000_000)
	tx.TransactionHour = offHoursList[e.r.Intn(len(offHoursList))]
	tx.BiometricFailureCount = e.weightedInt([]int{0, 1}, []int{70, 30})
	tx.IsFraud = true
	tx.FraudType = domain.PatternMoneyLaundering

	e.registry.Apply(e.r, p, now)
	return tx
}

// accountTakeover produces a large off-hours transaction from an unknown
// device with repeated biometric failures, possibly from an atypical
// location.
func (e *Engine) accountTakeover(now time.Time) domain.Transaction {
	p := e.registry.GetOrCreate(e.r, now)
	e.seedProfile(p)
	freq := e.registry.RecordActivity(e.r, p, now, 0)

	tx := e.base(p, now, freq)
	tx.TransactionAmount = e.uniform(50_000_000, 500_000_000)
	tx.TransactionHour = offHoursList[e.r.Intn(len(offHoursList))]
	tx.DeviceID = fmt.Sprintf("%s%05d", domain.SuspiciousDevicePrefix, 90_000+e.r.Intn(10_000))
	tx.BiometricFailureCount = 3 + e.r.Intn(3)
	tx.LocationCity = e.atypicalLocation()
	tx.IsFraud = true
	tx.FraudType = domain.PatternAccountTakeover

	e.registry.Apply(e.r, p, now)
	return tx
}

// loanFraud produces a transaction against a freshly minted account with an
// outsized loan balance, a thin transaction history and a non-performing
// flag — the synthetic-identity loan archetype.
func (e *Engine) loanFraud(now time.Time) domain.Transaction {
	p := e.registry.Create(now)
	e.registry.Force(p,
		e.uniform(500_000_000, 2_000_000_000),
		e.lognormal(12.0, 1.8),
		1+e.r.Intn(49),
		true)
	freq := e.registry.RecordActivity(e.r, p, now, 0)

	tx := e.base(p, now, freq)
	tx.TransactionAmount = e.uniform(100_000_000, 800_000_000)
	tx.TransactionHour = e.diurnalHour()
	tx.DeviceID = fmt.Sprintf("%s%05d", domain.SuspiciousDevicePrefix, 80_000+e.r.Intn(10_000))
	tx.BiometricFailureCount = e.weightedInt([]int{0, 1, 2}, []int{60, 25, 15})
	tx.IsFraud = true
	tx.FraudType = domain.PatternLoanFraud

	e.registry.Apply(e.r, p, now)
	return tx
}

// feeManipulation produces a small transaction with a flooded 5-minute
// window and a fee far above the normal fee-to-amount ratio.
func (e *Engine) feeManipulation(now time.Time) domain.Transaction {
	p := e.registry.GetOrCreate(e.r, now)
	e.seedProfile(p)
	freq := e.registry.RecordActivity(e.r, p, now, 12+e.r.Intn(9))

	tx := e.base(p, now, freq)
	tx.TransactionAmount = e.uniform(10_000, 100_000)
	tx.TransactionHour = e.diurnalHour()
	tx.TransactionFees = tx.TransactionAmount * 0.05
	tx.BiometricFailureCount = e.weightedInt([]int{0, 1}, []int{90, 10})
	tx.IsFraud = true
	tx.FraudType = domain.PatternFeeManipulation

	e.registry.Apply(e.r, p, now)
	return tx
}

// ─── Field helpers ────────────────────────────────────────────────────────────

// base fills the fields shared by every pattern, snapshotting the account's
// balance-sheet state as it stands right now.
func (e *Engine) base(p *account.Profile, now time.Time, freq int) domain.Transaction {
	return domain.Transaction{
		AccountID:              p.ID,
		BranchID:               1 + e.r.Intn(10),
		TransactionTimestamp:   now.Format(time.RFC3339),
		LocationCity:           domain.Cities[e.r.Intn(len(domain.Cities))],
		DeviceID:               fmt.Sprintf("DEV_%05d", 10_000+e.r.Intn(40_000)),
		TransactionFrequency5m: freq,
		TotalLoans:             p.TotalLoans,
		NumTransactions:        p.NumTransactions,
		NPLFlag:                p.NPLFlag,
		TotalDeposits:          p.TotalDeposits,
	}
}

// seedProfile gives a never-used profile a realistic starting balance sheet.
// Established profiles are left alone; their balances random-walk instead.
func (e *Engine) seedProfile(p *account.Profile) {
	if p.NumTransactions > 0 {
		return
	}
	e.registry.Force(p,
		e.lognormal(13.0, 1.5),
		e.lognormal(13.1, 1.4),
		50+e.r.Intn(451),
		e.r.Float64() < 0.0198)
}

// atypicalLocation returns a normal city most of the time, but occasionally
// a label the account has never plausibly transacted from.
func (e *Engine) atypicalLocation() string {
	labels := append([]string{"Unknown", "Foreign_Location"}, domain.Cities...)
	return labels[e.r.Intn(len(labels))]
}

// diurnalHour draws an hour of day from the business-hours-peaked table.
func (e *Engine) diurnalHour() int {
	total := 0
	for _, w := range diurnalWeights {
		total += w
	}
	d := e.r.Intn(total)
	for hour, w := range diurnalWeights {
		d -= w
		if d < 0 {
			return hour
		}
	}
	return 12 // unreachable
}

// weightedInt picks one value using the matching relative weights.
func (e *Engine) weightedInt(values, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	d := e.r.Intn(total)
	for i, w := range weights {
		d -= w
		if d < 0 {
			return values[i]
		}
	}
	return values[len(values)-1]
}

// lognormal draws from a log-normal distribution with the given parameters
// of the underlying normal.
func (e *Engine) lognormal(mu, sigma float64) float64 {
	return math.Exp(e.r.NormFloat64()*sigma + mu)
}

// uniform draws from [lo, hi).
func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + e.r.Float64()*(hi-lo)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
