package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"merocart/internal/config"
	"merocart/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// amqpNotifier publishes order events to a topic exchange. The event kind is
// the routing key, so consumers bind only to the transitions they care about.
type amqpNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

// NewAMQP connects to the broker and declares the exchange. The connection
// is retried with backoff since the broker often starts alongside us.
func NewAMQP(cfg config.AMQPConfig, logger zerolog.Logger) (Notifier, error) {
	logger = logger.With().Str("component", "amqp-notifier").Logger()

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		retryIn := time.Duration(i*i)*time.Second + time.Second
		logger.Warn().Err(err).Dur("retry_in", retryIn).Msg("broker connection failed, retrying")
		time.Sleep(retryIn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker after retries: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info().Str("exchange", cfg.Exchange).Msg("event publisher connected")

	return &amqpNotifier{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

// Notify publishes an event for the order with the kind as routing key.
func (n *amqpNotifier) Notify(ctx context.Context, kind EventKind, order *model.Order) error {
	event := OrderEvent{
		Kind:          string(kind),
		OrderID:       order.ID.String(),
		UserID:        order.UserID.String(),
		TotalAmount:   order.TotalAmount,
		OrderStatus:   string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = n.channel.PublishWithContext(pubCtx,
		n.exchange,   // exchange
		string(kind), // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", kind, order.ID, err)
	}

	n.logger.Debug().
		Str("kind", string(kind)).
		Str("order_id", order.ID.String()).
		Msg("event published")

	return nil
}

// Close releases the channel and connection.
func (n *amqpNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
