package common

import (
	"context"
	"log/slog"
	"time"

	stakeerrors "stakegov/core/errors"
)

// Inconsistency describes a ledger transaction that was accepted while the
// matching local write failed. The ledger is authoritative; the record tells an
// operator what to repair.
type Inconsistency struct {
	Op         string    `json:"op"`
	Account    string    `json:"account"`
	TxID       string    `json:"tx_id"`
	Detail     string    `json:"detail"`
	Cause      string    `json:"cause"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Journal durably stores inconsistencies for later reconciliation.
type Journal interface {
	Append(ctx context.Context, rec Inconsistency) error
}

// InconsistencyCounter is satisfied by the metrics registry.
type InconsistencyCounter interface {
	RecordInconsistency(op string)
}

// Reporter routes inconsistencies to the log, the metrics registry and the
// journal. A journal failure is logged but never hides the original problem.
type Reporter struct {
	Logger  *slog.Logger
	Journal Journal
	Metrics InconsistencyCounter
}

// Report records the inconsistency on every configured sink.
func (r *Reporter) Report(ctx context.Context, rec Inconsistency) {
	if r == nil {
		slog.Default().Error("ledger and local state diverged", slog.Bool("inconsistency", true), slog.String("op", rec.Op))
		return
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	logger.ErrorContext(ctx, "ledger and local state diverged; reconciliation required",
		slog.Bool("inconsistency", true),
		slog.String("op", rec.Op),
		slog.String("account", rec.Account),
		slog.String("tx", rec.TxID),
		slog.String("detail", rec.Detail),
		slog.String("error", rec.Cause),
	)
	if r.Metrics != nil {
		r.Metrics.RecordInconsistency(rec.Op)
	}
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Append(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "append reconciliation journal",
			slog.Bool("inconsistency", true),
			slog.String("op", rec.Op),
			slog.String("tx", rec.TxID),
			slog.String("error", err.Error()),
		)
	}
}

// Diverged reports the inconsistency and returns the reconciliation error the
// engine hands back to its caller.
func (r *Reporter) Diverged(ctx context.Context, op, account, txID, detail string, cause error) error {
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	r.Report(ctx, Inconsistency{
		Op:      op,
		Account: account,
		TxID:    txID,
		Detail:  detail,
		Cause:   causeText,
	})
	return &stakeerrors.ReconciliationError{Op: op, Account: account, TxID: txID, Cause: cause}
}
