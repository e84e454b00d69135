package bot

import (
	"context"
	"fmt"
	"runtime/debug"

	"raskhody/internal/log"
	"raskhody/internal/metrics"
)

// Dispatcher runs the handler for one message and delivers the reply.
// Send failures are logged and returned but never retried.
type Dispatcher struct {
	handler MessageHandler
	sink    ReplySink
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(handler MessageHandler, sink ReplySink, logger *log.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Dispatcher{
		handler: handler,
		sink:    sink,
		logger:  logger.WithComponent(log.ComponentBot),
		metrics: m,
	}
}

// Dispatch handles in and sends the reply to its chat. A panic in the
// handler is recovered and reported as an error so the next message is
// still processed.
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Panic while handling message",
				log.FieldMessageID, in.MessageID,
				log.FieldUserID, in.UserID,
				"panic", r,
				"stack", string(debug.Stack()))
			d.metrics.ObserveMessage("unknown", metrics.OutcomePanic)
			err = fmt.Errorf("handle message %s: panic: %v", in.MessageID, r)
		}
	}()

	reply := d.handler.HandleMessage(ctx, in)
	if reply.Text == "" {
		return nil
	}

	if err := d.sink.Send(ctx, in.ReplyTo(), reply.Text); err != nil {
		err = SendError(err)
		fields := log.NewFields().
			WithUser(in.UserID, in.ReplyTo()).
			WithOperation(log.OpSendReply).
			WithError(err)
		fields[log.FieldMessageID] = in.MessageID
		d.logger.ErrorContext(ctx, "Failed to send reply", fields.ToSlice()...)
		d.metrics.ObserveMessage("reply", metrics.OutcomeSendFailure)
		return err
	}
	return nil
}
