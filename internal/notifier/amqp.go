package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueNotifier publishes notifications onto a durable AMQP queue for a
// downstream delivery worker to drain.
type QueueNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

type queueMessage struct {
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewQueueNotifier(amqpURL, queue string) (*QueueNotifier, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &QueueNotifier{conn: conn, channel: channel, queue: queue}, nil
}

func (n *QueueNotifier) Notify(ctx context.Context, recipient, channel, kind, message string) error {
	body, err := json.Marshal(queueMessage{
		Recipient: recipient,
		Channel:   channel,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return n.channel.PublishWithContext(
		ctx,
		"",      // exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (n *QueueNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
