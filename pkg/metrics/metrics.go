// Package metrics exposes prometheus counters for the import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsParsed counts statement rows successfully parsed into candidates.
	RowsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerkeep_import_rows_parsed_total",
		Help: "Statement rows parsed into transaction candidates",
	})

	// RowErrors counts statement rows rejected during parsing.
	RowErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerkeep_import_row_errors_total",
		Help: "Statement rows rejected with a row-level parse error",
	})

	// TransactionsCommitted counts transactions created by import commits.
	TransactionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerkeep_import_transactions_committed_total",
		Help: "Double-entry transactions created from confirmed imports",
	})

	// CommitFailures counts import commit calls that rolled back.
	CommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerkeep_import_commit_failures_total",
		Help: "Import commit calls that failed and rolled back",
	})
)
