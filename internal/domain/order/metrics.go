package order

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	created       metric.Int64Counter
	failed        metric.Int64Counter
	canceled      metric.Int64Counter
	statusChanges metric.Int64Counter
}

func newMetrics(m metric.Meter) (*metrics, error) {
	var (
		out metrics
		err error
	)
	if out.created, err = m.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if out.failed, err = m.Int64Counter("storefront.orders.failed",
		metric.WithDescription("Order operations that failed, by error kind"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.failed")
	}
	if out.canceled, err = m.Int64Counter("storefront.orders.canceled",
		metric.WithDescription("Orders that entered the canceled state"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.canceled")
	}
	if out.statusChanges, err = m.Int64Counter("storefront.orders.status_changes",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status_changes")
	}
	return &out, nil
}
