// Package domain contains all core types used across the application.
// Keeping transaction shapes and configuration in one place makes the fraud
// pattern rules easy to reason about.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ─── Constants ───────────────────────────────────────────────────────────────

// Fraud pattern labels attached to generated transactions.
const (
	PatternNormal          = "normal"
	PatternMoneyLaundering = "money_laundering"
	PatternAccountTakeover = "account_takeover"
	PatternLoanFraud       = "loan_fraud"
	PatternFeeManipulation = "fee_manipulation"
)

// SuspiciousDevicePrefix marks devices outside the known device pool.
// Account-takeover and loan-fraud patterns mint device IDs in this namespace,
// and the producer's enrichment flags any device that carries it.
const SuspiciousDevicePrefix = "DEV_NEW_"

// MaxBatchSize is the hard cap on transactions per batch, for both ad-hoc
// batch requests and the streaming loop's batch size.
const MaxBatchSize = 1000

// HighAmountThreshold is the enrichment cutoff for the high-amount flag.
const HighAmountThreshold = 300_000_000

// HighFrequencyThreshold is the enrichment cutoff for the 5-minute
// transaction-frequency flag.
const HighFrequencyThreshold = 15

// OffHours is the set of hours considered outside normal banking activity.
// Money-laundering and account-takeover patterns force their hour into this
// set, and the producer's off-hours enrichment flag tests membership in it.
var OffHours = map[int]bool{0: true, 1: true, 2: true, 3: true, 22: true, 23: true}

// Cities served by the bank's branches. Location labels are drawn from here
// for all patterns except account takeover, which may use an atypical label.
var Cities = []string{
	"Ho Chi Minh City", "Hanoi", "Da Nang", "Can Tho",
	"Hai Phong", "Bien Hoa", "Hue", "Nha Trang",
}

// ─── Core domain types ────────────────────────────────────────────────────────

// Transaction is one synthetic banking transaction. It is immutable once
// generated and carries a snapshot of the account's state at generation time,
// not a live reference.
type Transaction struct {
	TransactionID          string  `json:"transaction_id"`
	AccountID              string  `json:"account_id"`
	BranchID               int     `json:"branch_id"`
	TransactionAmount      float64 `json:"transaction_amount"`
	TransactionHour        int     `json:"transaction_hour"`
	TransactionTimestamp   string  `json:"transaction_timestamp"`
	LocationCity           string  `json:"location_city"`
	DeviceID               string  `json:"device_id"`
	BiometricFailureCount  int     `json:"biometric_failure_count"`
	TransactionFrequency5m int     `json:"transaction_frequency_5min"`
	TotalLoans             float64 `json:"total_loans"`
	NumTransactions        int     `json:"num_transactions"`
	NPLFlag                bool    `json:"npl_flag"`
	TotalDeposits          float64 `json:"total_deposits"`
	TransactionFees        float64 `json:"transaction_fees"`
	IsFraud                bool    `json:"is_fraud"`
	FraudType              string  `json:"fraud_type"`
}

// IsSuspiciousDevice reports whether the transaction's device sits in the
// new/suspicious device namespace.
func (t *Transaction) IsSuspiciousDevice() bool {
	return strings.HasPrefix(t.DeviceID, SuspiciousDevicePrefix)
}

// BatchResponse is the payload returned for ad-hoc batch generation.
type BatchResponse struct {
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"count"`
	Timestamp    string        `json:"timestamp"`
}

// BatchEvent is one packet pushed to streaming subscribers: the batch emitted
// by a single controller loop iteration plus its emission timestamp.
type BatchEvent struct {
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// ─── Streaming configuration ──────────────────────────────────────────────────

// ErrInvalidConfig is returned when a StreamConfig fails validation.
// Invalid updates are rejected before any mutation, so the prior
// configuration always survives a failed update.
var ErrInvalidConfig = errors.New("invalid configuration")

// StreamConfig controls the streaming loop and fraud injection. It is read by
// both the streaming controller and ad-hoc generation requests.
type StreamConfig struct {
	FrequencySeconds   float64 `json:"frequency_seconds"`
	FraudInjectionRate float64 `json:"fraud_injection_rate"`
	BatchSize          int     `json:"batch_size"`
}

// DefaultStreamConfig returns the configuration the service boots with:
// one transaction per second with 5% fraud injection.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		FrequencySeconds:   1.0,
		FraudInjectionRate: 0.05,
		BatchSize:          1,
	}
}

// Validate checks every field and reports the first violation. A nil return
// means the config is safe to install.
func (c StreamConfig) Validate() error {
	if c.FrequencySeconds <= 0 {
		return fmt.Errorf("%w: frequency_seconds must be greater than 0, got %v",
			ErrInvalidConfig, c.FrequencySeconds)
	}
	if c.FraudInjectionRate < 0 || c.FraudInjectionRate > 1 {
		return fmt.Errorf("%w: fraud_injection_rate must be between 0.0 and 1.0, got %v",
			ErrInvalidConfig, c.FraudInjectionRate)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch_size must be between 1 and %d, got %d",
			ErrInvalidConfig, MaxBatchSize, c.BatchSize)
	}
	return nil
}

// Interval converts the configured frequency to a time.Duration.
func (c StreamConfig) Interval() time.Duration {
	return time.Duration(c.FrequencySeconds * float64(time.Second))
}

// ConfigUpdate is a partial StreamConfig: nil fields keep their prior value.
type ConfigUpdate struct {
	FrequencySeconds   *float64 `json:"frequency_seconds,omitempty"`
	FraudInjectionRate *float64 `json:"fraud_injection_rate,omitempty"`
	BatchSize          *int     `json:"batch_size,omitempty"`
}

// Apply merges the update into base and returns the result. The merged config
// is not validated here; callers validate before installing it.
func (u ConfigUpdate) Apply(base StreamConfig) StreamConfig {
	if u.FrequencySeconds != nil {
		base.FrequencySeconds = *u.FrequencySeconds
	}
	if u.FraudInjectionRate != nil {
		base.FraudInjectionRate = *u.FraudInjectionRate
	}
	if u.BatchSize != nil {
		base.BatchSize = *u.BatchSize
	}
	return base
}

// ─── Status ───────────────────────────────────────────────────────────────────

// Status is the serving-side observability snapshot.
type Status struct {
	Streaming             bool         `json:"streaming"`
	TransactionsGenerated uint64       `json:"transactions_generated"`
	ActiveAccounts        int          `json:"active_accounts"`
	Config                StreamConfig `json:"config"`
}
