package queue

import (
	"encoding/json"
	"time"

	"loyalty-attendance-backend/internal/services"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Client wraps a RabbitMQ channel bound to an x-delayed-message exchange.
// Delay is carried in the x-delay header, so a single exchange/queue pair
// serves both immediate and scheduled tasks.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

func NewClient(url, exchange, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queue,
	}

	args := amqp.Table{"x-delayed-type": "direct"}
	if err := ch.ExchangeDeclare(exchange, "x-delayed-message", true, false, false, false, args); err != nil {
		client.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		client.Close()
		return nil, err
	}
	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		client.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"exchange": exchange,
		"queue":    queue,
	}).Info("RabbitMQ task queue initialized")
	return client, nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// PublishDelayed satisfies services.TaskQueue. Negative delays publish
// immediately.
func (c *Client) PublishDelayed(msg services.TaskMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	if delay > 0 {
		headers["x-delay"] = delay.Milliseconds()
	}

	err = c.channel.Publish(c.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"kind":     msg.Kind,
			"event_id": msg.EventID,
		}).Error("failed to publish task")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"kind":     msg.Kind,
		"event_id": msg.EventID,
		"delay":    delay,
	}).Debug("task published")
	return nil
}

// Consume delivers queued task bodies to handler on a background goroutine.
// Retries are explicit re-publishes by the handler, never broker
// redeliveries, so a handled task is acked even when it logically failed. A
// handler error means the re-publish itself could not be placed; the message
// is nacked back onto the queue so it is not lost while the broker recovers.
func (c *Client) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				logrus.WithError(err).Warn("task handler failed, message requeued")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}()

	logrus.WithField("queue", c.queue).Info("task consumer started")
	return nil
}
