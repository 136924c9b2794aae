// Package amqprelay shares session events between instances through a
// RabbitMQ fanout exchange. Every instance publishes envelopes to the
// exchange and consumes them from its own exclusive queue into its local
// websocket hub, so subscribers see events no matter which instance handled
// the mutation.
package amqprelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/logging"
	"github.com/wricardo/groupcart/transport/websocket"
)

const DefaultExchange = "groupcart.events"

// Deliverer receives envelopes for local fanout.
type Deliverer interface {
	Deliver(env *websocket.Envelope) error
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Relay publishes to the exchange and consumes back into a Deliverer.
type Relay struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	queue    string
	local    Deliverer
	log      zerolog.Logger

	mu sync.Mutex
}

// Dial connects to url, declares the fanout exchange and a private queue
// bound to it.
func Dial(url, exchange string, local Deliverer, log zerolog.Logger) (*Relay, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}

	r := newRelay(ch, exchange, q.Name, local, log)
	r.conn = conn
	return r, nil
}

func newRelay(ch channel, exchange, queue string, local Deliverer, log zerolog.Logger) *Relay {
	return &Relay{
		ch:       ch,
		exchange: exchange,
		queue:    queue,
		local:    local,
		log:      logging.Component(log, "amqp-relay"),
	}
}

// Publish sends the event to every instance. If the broker rejects it the
// event is delivered to this instance's subscribers only.
func (r *Relay) Publish(ctx context.Context, code string, eventType session.EventType, payload any) error {
	env, err := websocket.NewEnvelope(code, eventType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	r.mu.Lock()
	err = r.ch.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.ID,
		Timestamp:   env.SentAt,
		Type:        string(eventType),
		Body:        body,
	})
	r.mu.Unlock()
	if err != nil {
		r.log.Warn().Err(err).Str("code", env.Code).Msg("relay publish failed, delivering locally")
		return r.local.Deliver(env)
	}
	return nil
}

// Run consumes the instance queue until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	deliveries, err := r.ch.ConsumeWithContext(ctx, r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}

	r.log.Info().Str("exchange", r.exchange).Str("queue", r.queue).Msg("relay consuming")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("relay delivery channel closed")
			}
			if err := r.handleDelivery(d.Body); err != nil {
				r.log.Warn().Err(err).Str("message_id", d.MessageId).Msg("dropping relayed event")
			}
		}
	}
}

func (r *Relay) handleDelivery(body []byte) error {
	var env websocket.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Code == "" || env.Type == "" {
		return errors.New("envelope missing code or type")
	}
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}
	return r.local.Deliver(&env)
}

// Close closes the channel and connection.
func (r *Relay) Close() error {
	err := r.ch.Close()
	if r.conn != nil {
		if cerr := r.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
