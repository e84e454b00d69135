package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"raskhody/internal/bot"
)

// Circuit breaker states for publishing.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
	prefetchCount  = 32
)

type Client struct {
	url          string
	exchangeName string
	inboundQueue string
	replyQueue   string

	mu      sync.RWMutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	cbMu         sync.Mutex
	lastFailure  time.Time

	dial         func(url string) (*amqp091.Connection, error)
	reconnecting atomic.Bool
	ctx          context.Context // canceled by Close; bounds background reconnects
	cancel       context.CancelFunc
}

var _ bot.ReplySink = (*Client)(nil)

func NewClient(url, exchangeName, inboundQueue, replyQueue string) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		inboundQueue: inboundQueue,
		replyQueue:   replyQueue,
		dial:         amqp091.Dial,
		ctx:          ctx,
		cancel:       cancel,
	}
	if err := c.connect(); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.mu.Lock()
	oldConn, oldChannel := c.conn, c.channel
	c.conn, c.channel = conn, channel
	c.mu.Unlock()

	if oldChannel != nil {
		oldChannel.Close()
	}
	if oldConn != nil {
		oldConn.Close()
	}
	return nil
}

func (c *Client) setup(channel *amqp091.Channel) error {
	err := channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Both queues are bound with their own name as routing key.
	for _, queue := range []string{c.inboundQueue, c.replyQueue} {
		if _, err := channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	if err := channel.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// reconnect retries connect with exponential backoff until it succeeds or
// ctx is done.
func (c *Client) reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := c.connect()
		if err == nil {
			slog.InfoContext(ctx, "Reconnected to AMQP", "attempt", attempt+1)
			return nil
		}

		delay := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP reconnect failed",
			"attempt", attempt+1,
			"retry_in", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// reconnectInBackground starts one reconnect loop unless one is running.
// Publishing has no loop of its own to recover a dead connection.
func (c *Client) reconnectInBackground() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.reconnecting.Store(false)
		if err := c.reconnect(c.ctx); err != nil {
			slog.Debug("Background AMQP reconnect stopped", "error", err)
		}
	}()
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"eof",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.cbMu.Lock()
	last := c.lastFailure
	c.cbMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.cbMu.Lock()
	c.lastFailure = time.Now()
	c.cbMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// PublishReply publishes a reply to the reply queue. Publishing stops for
// openTimeout after maxFailures consecutive failures.
func (c *Client) PublishReply(ctx context.Context, reply *ChatReply) error {
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open, refusing to publish")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := reply.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()
	if channel == nil {
		c.recordFailure()
		c.reconnectInBackground()
		return errors.New("publish reply: channel/connection is not open")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.replyQueue,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     reply.ID,
			CorrelationId: reply.InReplyTo,
			Timestamp:     reply.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.reconnectInBackground()
		}
		return fmt.Errorf("publish reply: %w", err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published chat reply",
		"id", reply.ID,
		"in_reply_to", reply.InReplyTo,
		"chat_id", reply.ChatID,
		"queue", c.replyQueue)
	return nil
}

// Send implements bot.ReplySink. The inbound message id travels in ctx.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	reply := NewChatReply(messageIDFrom(ctx), chatID, text)
	return bot.SendError(c.PublishReply(ctx, reply))
}

// Consume delivers every inbound message to handle until ctx is done. The
// handler owns the delivery and must ack or nack it. Broken connections
// are re-established with backoff.
func (c *Client) Consume(ctx context.Context, handle func(context.Context, amqp091.Delivery)) error {
	for {
		deliveries, err := c.startConsuming()
		if err == nil {
			slog.InfoContext(ctx, "Started consuming chat messages", "queue", c.inboundQueue)
			err = c.drain(ctx, deliveries, handle)
		}
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		slog.WarnContext(ctx, "AMQP consumer interrupted", "error", err)
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) startConsuming() (<-chan amqp091.Delivery, error) {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()
	if channel == nil {
		return nil, errors.New("start consuming: channel/connection is not open")
	}

	msgs, err := channel.Consume(
		c.inboundQueue, // queue
		"",             // consumer
		false,          // auto-ack (we want manual ack)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

func (c *Client) drain(ctx context.Context, deliveries <-chan amqp091.Delivery, handle func(context.Context, amqp091.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return amqp091.ErrClosed
			}
			handle(ctx, delivery)
		}
	}
}

func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

type messageIDKey struct{}

// WithMessageID records the inbound message a reply answers.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}

func messageIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey{}).(string)
	return id
}
