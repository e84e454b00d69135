package amqp

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"

	"raskhody/internal/bot"
	"raskhody/internal/log"
	"raskhody/internal/worker"
)

// Submitter runs jobs in per-key order. Implemented by worker.Pool.
type Submitter interface {
	Submit(ctx context.Context, key int64, job worker.Job) error
}

// Dispatcher handles one message end to end. Implemented by bot.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, in bot.Inbound) error
}

// Consumer feeds inbound queue messages to the bot.
//
// Every well-formed message is acked once it has been handled, whether or
// not the store or the reply succeeded: failures already produced a reply
// and redelivery would record the expense twice. Malformed bodies are
// rejected without requeue.
type Consumer struct {
	client     *Client
	pool       Submitter
	dispatcher Dispatcher
	logger     *log.Logger
}

func NewConsumer(client *Client, pool Submitter, dispatcher Dispatcher, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Consumer{
		client:     client,
		pool:       pool,
		dispatcher: dispatcher,
		logger:     logger.WithComponent(log.ComponentAMQP),
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.Consume(ctx, c.handleDelivery)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp091.Delivery) {
	msg, err := ChatMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to unmarshal message",
			log.FieldOperation, log.OpConsume,
			log.FieldError, err)
		if err := d.Nack(false, false); err != nil {
			c.logger.WarnContext(ctx, "Failed to reject message", log.FieldError, err)
		}
		return
	}

	in := msg.Inbound()
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = d.Timestamp
	}

	err = c.pool.Submit(ctx, in.UserID, func(jobCtx context.Context) {
		jobCtx = WithMessageID(jobCtx, in.MessageID)
		if err := c.dispatcher.Dispatch(jobCtx, in); err != nil {
			c.logger.WarnContext(jobCtx, "Message handled with errors",
				log.FieldMessageID, in.MessageID,
				log.FieldError, err)
		}
		if err := d.Ack(false); err != nil {
			c.logger.WarnContext(jobCtx, "Failed to ack message",
				log.FieldMessageID, in.MessageID,
				log.FieldError, err)
		}
	})
	if err != nil {
		// Not handled at all, so another consumer may take it.
		c.logger.WarnContext(ctx, "Failed to queue message",
			log.FieldMessageID, in.MessageID,
			log.FieldError, err)
		if err := d.Nack(false, true); err != nil {
			c.logger.WarnContext(ctx, "Failed to requeue message", log.FieldError, err)
		}
	}
}
