package ledger

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Observer receives the outcome of every ledger submission.
type Observer interface {
	ObserveLedgerSubmit(kind string, ok bool, elapsed time.Duration)
}

// Instrumented decorates a Client with tracing spans and submission metrics.
type Instrumented struct {
	next     Client
	observer Observer
	tracer   trace.Tracer
	nowFn    func() time.Time
}

// Instrument wraps next. A nil observer only disables metrics.
func Instrument(next Client, observer Observer) *Instrumented {
	return &Instrumented{
		next:     next,
		observer: observer,
		tracer:   otel.Tracer("stakegov/ledger"),
		nowFn:    time.Now,
	}
}

// Submit implements Client.
func (i *Instrumented) Submit(ctx context.Context, tx Tx) (TxID, error) {
	ctx, span := i.tracer.Start(ctx, "ledger.submit", trace.WithAttributes(
		attribute.String("ledger.tx_kind", string(tx.Kind)),
		attribute.String("ledger.amount", tx.Amount.String()),
	))
	defer span.End()

	started := i.nowFn()
	id, err := i.next.Submit(ctx, tx)
	if i.observer != nil {
		i.observer.ObserveLedgerSubmit(string(tx.Kind), err == nil, i.nowFn().Sub(started))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("ledger.tx_id", string(id)))
	return id, nil
}

// QueryBalance implements Client.
func (i *Instrumented) QueryBalance(ctx context.Context, account string) (sdkmath.Int, error) {
	ctx, span := i.tracer.Start(ctx, "ledger.query_balance")
	defer span.End()
	amount, err := i.next.QueryBalance(ctx, account)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return amount, err
}

// QueryStakedBalance implements Client.
func (i *Instrumented) QueryStakedBalance(ctx context.Context, account string) (sdkmath.Int, error) {
	ctx, span := i.tracer.Start(ctx, "ledger.query_staked_balance")
	defer span.End()
	amount, err := i.next.QueryStakedBalance(ctx, account)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return amount, err
}

// BlockHeight implements Client.
func (i *Instrumented) BlockHeight(ctx context.Context) (uint64, error) {
	return i.next.BlockHeight(ctx)
}
