// Package bigquery forwards events to a BigQuery dataset as warehouse rows.
// Every event kind lands in its pluralized kind table; track calls land twice,
// once in the per-event table and once in the shared tracks table. Table
// creation and schema widening are handled by the warehouse table manager.
package bigquery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/maccman/opentrack-sub000/pkg/events"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/metrics"
	"github.com/maccman/opentrack-sub000/pkg/retry"
	"github.com/maccman/opentrack-sub000/pkg/transform"
	"github.com/maccman/opentrack-sub000/pkg/warehouse"
)

// Name is the registry name of this destination
const Name = "bigquery"

// maxBackoff caps retry delays for warehouse writes. Schema propagation in
// BigQuery can lag table mutations, so the cap is generous.
const maxBackoff = 30 * time.Second

// Destination delivers events into warehouse tables
type Destination struct {
	dataset     string
	manager     *warehouse.TableManager
	transformer *transform.Transformer
	policy      *retry.Policy
	logger      *zap.Logger
}

// New creates a BigQuery destination over the given store
func New(dataset string, store warehouse.Store, policy *retry.Policy) *Destination {
	log := logger.With(zap.String("integration", Name))

	policy = policy.Clone()
	if policy.MaxDelay > maxBackoff {
		policy.MaxDelay = maxBackoff
	}
	policy.OnRetry = func(attempt int, err error) {
		metrics.RetryAttempts.WithLabelValues(Name).Inc()
		log.Warn("retrying warehouse write",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return &Destination{
		dataset:     dataset,
		manager:     warehouse.NewTableManager(store),
		transformer: transform.NewTransformer(),
		policy:      policy,
		logger:      log,
	}
}

// Name returns the registry name
func (d *Destination) Name() string { return Name }

func (d *Destination) Track(ctx context.Context, e *events.Event) error {
	return d.deliver(ctx, e)
}

func (d *Destination) Identify(ctx context.Context, e *events.Event) error {
	return d.deliver(ctx, e)
}

func (d *Destination) Page(ctx context.Context, e *events.Event) error {
	return d.deliver(ctx, e)
}

func (d *Destination) Group(ctx context.Context, e *events.Event) error {
	return d.deliver(ctx, e)
}

func (d *Destination) Alias(ctx context.Context, e *events.Event) error {
	return d.deliver(ctx, e)
}

// deliver builds the row once and writes it to every table the event maps
// to. Each table write retries independently; a failure on the second table
// after the first succeeded means a duplicate-free partial delivery, which
// the insert-id dedupe in the store absorbs on retry.
func (d *Destination) deliver(ctx context.Context, e *events.Event) error {
	row, err := d.transformer.ToRow(e)
	if err != nil {
		return err
	}

	tables, err := transform.TableNames(e)
	if err != nil {
		return err
	}

	for _, table := range tables {
		err := d.policy.Execute(ctx, func() error {
			return d.manager.InsertWithAutoSchema(ctx, d.dataset, table, table, []warehouse.Row{row})
		})
		if err != nil {
			return err
		}

		d.logger.Debug("row inserted",
			zap.String("table", table),
			zap.String("message_id", e.MessageID))
	}

	return nil
}
