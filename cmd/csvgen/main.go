// Command csvgen exports a labelled CSV of synthetic banking transactions
// for offline model training and analysis.
//
// Usage:
//
//	go run ./cmd/csvgen [flags]
//
// Flags:
//
//	-count  number of transactions to generate (default: 1000)
//	-out    output file path (default: banking_transactions.csv)
//	-fraud  fraud injection rate (default: 0.05)
//	-seed   random seed; 0 seeds from the clock (default: 0)
package main

import (
	"encoding/csv"
	"flag"
	"log/slog"
	"os"
	"strconv"

	"harborbank/txstream/internal/account"
	"harborbank/txstream/internal/domain"
	"harborbank/txstream/internal/generator"
)

var header = []string{
	"transaction_id", "account_id", "branch_id", "transaction_amount",
	"transaction_hour", "transaction_timestamp", "location_city", "device_id",
	"biometric_failure_count", "transaction_frequency_5min", "total_loans",
	"num_transactions", "npl_flag", "total_deposits", "transaction_fees",
	"is_fraud", "fraud_type",
}

func main() {
	count := flag.Int("count", 1000, "number of transactions to generate")
	out := flag.String("out", "banking_transactions.csv", "output file path")
	fraudRate := flag.Float64("fraud", 0.05, "fraud injection rate (0.0-1.0)")
	seed := flag.Int64("seed", 0, "random seed (0 = clock)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if *fraudRate < 0 || *fraudRate > 1 {
		slog.Error("fraud rate must be between 0.0 and 1.0", "got", *fraudRate)
		os.Exit(2)
	}

	var opts []generator.Option
	if *seed != 0 {
		opts = append(opts, generator.WithSeed(*seed))
	}
	engine := generator.New(account.New(0), opts...)

	f, err := os.Create(*out)
	if err != nil {
		slog.Error("create output file", "path", *out, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		slog.Error("write header", "error", err)
		os.Exit(1)
	}

	slog.Info("generating transactions", "count", *count, "fraud_rate", *fraudRate)

	fraud := 0
	for i := 0; i < *count; i++ {
		tx := engine.Generate(*fraudRate)
		if tx.IsFraud {
			fraud++
		}
		if err := w.Write(row(tx)); err != nil {
			slog.Error("write row", "transaction_id", tx.TransactionID, "error", err)
			os.Exit(1)
		}
		if (i+1)%100 == 0 {
			slog.Info("progress", "generated", i+1, "total", *count)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		slog.Error("flush csv", "error", err)
		os.Exit(1)
	}

	slog.Info("csv export complete",
		"file", *out,
		"transactions", *count,
		"fraud", fraud,
		"normal", *count-fraud)
}

func row(tx domain.Transaction) []string {
	return []string{
		tx.TransactionID,
		tx.AccountID,
		strconv.Itoa(tx.BranchID),
		strconv.FormatFloat(tx.TransactionAmount, 'f', 2, 64),
		strconv.Itoa(tx.TransactionHour),
		tx.TransactionTimestamp,
		tx.LocationCity,
		tx.DeviceID,
		strconv.Itoa(tx.BiometricFailureCount),
		strconv.Itoa(tx.TransactionFrequency5m),
		strconv.FormatFloat(tx.TotalLoans, 'f', 2, 64),
		strconv.Itoa(tx.NumTransactions),
		strconv.FormatBool(tx.NPLFlag),
		strconv.FormatFloat(tx.TotalDeposits, 'f', 2, 64),
		strconv.FormatFloat(tx.TransactionFees, 'f', 2, 64),
		strconv.FormatBool(tx.IsFraud),
		tx.FraudType,
	}
}
