package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeAccessLog = "accesslog.exchange"
	ExchangeRetry     = "accesslog.retry.exchange"
	ExchangeDLQ       = "accesslog.dlq.exchange"

	QueueAccessLog = "accesslog.queue"
	QueueRetry     = "accesslog.retry.queue"
	QueueDLQ       = "accesslog.dlq.queue"

	RoutingAccessLog = "accesslog"
	RoutingRetry     = "accesslog.retry"
	RoutingDLQ       = "accesslog.dlq"
)

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn == nil || c.Conn.IsClosed() || c.Channel == nil || c.Channel.IsClosed()
}

type queueSpec struct {
	exchange string
	queue    string
	routing  string
	args     amqp.Table
}

// topology: retry messages dead-letter back into the main exchange once their TTL runs out.
var topology = []queueSpec{
	{exchange: ExchangeAccessLog, queue: QueueAccessLog, routing: RoutingAccessLog},
	{exchange: ExchangeRetry, queue: QueueRetry, routing: RoutingRetry, args: amqp.Table{
		"x-dead-letter-exchange":    ExchangeAccessLog,
		"x-dead-letter-routing-key": RoutingAccessLog,
	}},
	{exchange: ExchangeDLQ, queue: QueueDLQ, routing: RoutingDLQ},
}

func (c *Client) DeclareTopology() error {
	for _, spec := range topology {
		if err := c.Channel.ExchangeDeclare(spec.exchange, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", spec.exchange, err)
		}
		if _, err := c.Channel.QueueDeclare(spec.queue, true, false, false, false, spec.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", spec.queue, err)
		}
		if err := c.Channel.QueueBind(spec.queue, spec.routing, spec.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", spec.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishAccessLog(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeAccessLog, RoutingAccessLog, body, "")
}

func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, RetryExpiration(delay))
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

// RetryExpiration is the per-message TTL in milliseconds parked on the retry queue.
func RetryExpiration(delay time.Duration) string {
	if delay < 0 {
		delay = 0
	}
	return fmt.Sprintf("%d", delay.Milliseconds())
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// Publisher holds one lazily dialled connection and redials after it drops.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Publisher) PublishAccessLog(ctx context.Context, body []byte) error {
	client, err := p.get()
	if err != nil {
		return fmt.Errorf("rabbitmq publisher: %w", err)
	}
	return client.PublishAccessLog(ctx, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
