package mq

import (
	"context"

	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/alert"
	"go.uber.org/zap"
)

// AlertNotifier publishes alert lifecycle events to the alert exchange.
// Publishing happens after the evaluation tick commits, so a broker failure
// loses at most the notification, never the alert itself.
type AlertNotifier struct {
	publisher  *Publisher
	routingKey string
	logger     *zap.Logger
}

// NewAlertNotifier creates a notifier that publishes under
// "<routingKey>.<event type>", e.g. "machine.alert.opened".
func NewAlertNotifier(publisher *Publisher, routingKey string, logger *zap.Logger) *AlertNotifier {
	return &AlertNotifier{
		publisher:  publisher,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Notify publishes one lifecycle event. Failures are logged and swallowed.
func (n *AlertNotifier) Notify(ctx context.Context, event alert.Event) {
	key := n.routingKey + "." + event.Type
	if err := n.publisher.Publish(ctx, key, event); err != nil {
		n.logger.Error("failed to publish alert event",
			zap.String("routing_key", key),
			zap.String("alert_id", event.Alert.AlertID.String()),
			zap.Error(err),
		)
	}
}
