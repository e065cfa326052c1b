package message_broaker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/talkvault/talkvault/types/config"
)

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	contentType string
}

// NewRabbitMQ connects and declares a durable topic exchange. When cfg.Queue is set the queue is
// declared too and bound to the exchange with cfg.RoutingKey, so events survive without a live consumer.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		closeAll()
		return nil, err
	}

	if cfg.Queue != "" {
		if _, err := ch.QueueDeclare(
			cfg.Queue,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			closeAll()
			return nil, err
		}

		bindKey := cfg.RoutingKey
		if bindKey == "" {
			bindKey = "#"
		}
		if err := ch.QueueBind(
			cfg.Queue,
			bindKey,
			cfg.Exchange,
			false,
			nil,
		); err != nil {
			closeAll()
			return nil, err
		}
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = config.DefaultContentType
	}

	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		exchange:    cfg.Exchange,
		contentType: contentType,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, message []byte) error {
	return r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  r.contentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         message,
		},
	)
}

func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan []byte, error) {
	msgs, err := r.channel.Consume(
		queue,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 1000)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Body:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
