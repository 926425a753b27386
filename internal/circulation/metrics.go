package circulation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
)

const meterName = "libraryhub/circulation"

// instruments are nil-safe: a failed registration leaves the field nil and
// recording becomes a no-op.
type instruments struct {
	issued   metric.Int64Counter
	returned metric.Int64Counter
	rejected metric.Int64Counter
	fees     metric.Float64Histogram
}

func newInstruments(meter metric.Meter, logger logging.Logger) *instruments {
	in := &instruments{}
	var err error

	if in.issued, err = meter.Int64Counter("libraryhub.circulation.issued",
		metric.WithDescription("Books issued to members.")); err != nil {
		logger.Warn("register metric", "metric", "issued", "error", err)
	}
	if in.returned, err = meter.Int64Counter("libraryhub.circulation.returned",
		metric.WithDescription("Books returned by members.")); err != nil {
		logger.Warn("register metric", "metric", "returned", "error", err)
	}
	if in.rejected, err = meter.Int64Counter("libraryhub.circulation.rejected",
		metric.WithDescription("Issue and return attempts refused by a lending rule.")); err != nil {
		logger.Warn("register metric", "metric", "rejected", "error", err)
	}
	if in.fees, err = meter.Float64Histogram("libraryhub.circulation.rent_fee",
		metric.WithDescription("Rent fees charged at return."),
		metric.WithUnit("{currency}")); err != nil {
		logger.Warn("register metric", "metric", "rent_fee", "error", err)
	}

	return in
}

func defaultMeter() metric.Meter {
	return otel.Meter(meterName)
}

func (in *instruments) recordIssued(ctx context.Context) {
	if in.issued != nil {
		in.issued.Add(ctx, 1)
	}
}

func (in *instruments) recordReturned(ctx context.Context, fee float64) {
	if in.returned != nil {
		in.returned.Add(ctx, 1)
	}
	if in.fees != nil {
		in.fees.Record(ctx, fee)
	}
}

func (in *instruments) recordRejected(ctx context.Context, op string, err error) {
	if in.rejected == nil {
		return
	}
	in.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("reason", errs.CodeOf(err)),
	))
}
