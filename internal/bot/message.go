// Package bot turns inbound chat messages into replies.
//
// Handler is the only place where errors become user-facing text. Transports
// feed it through a Dispatcher, which owns sending and failure logging.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Inbound is one user message as received by a transport.
type Inbound struct {
	MessageID  string
	UserID     int64
	ChatID     int64 // where replies go; zero means the user's private chat
	Username   string
	FirstName  string
	Text       string
	ReceivedAt time.Time
}

// ReplyTo is the chat that answers are sent to.
func (in Inbound) ReplyTo() int64 {
	if in.ChatID != 0 {
		return in.ChatID
	}
	return in.UserID
}

// Reply is the text sent back for one message. Empty means no reply.
type Reply struct {
	Text string
}

// ErrSendFailed is wrapped by every ReplySink error.
var ErrSendFailed = errors.New("send reply failed")

// SendError marks err as a delivery failure.
func SendError(err error) error {
	if err == nil || errors.Is(err, ErrSendFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSendFailed, err)
}

// ReplySink delivers reply text to a chat.
type ReplySink interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// ReplySinkFunc adapts a function to ReplySink.
type ReplySinkFunc func(ctx context.Context, chatID int64, text string) error

func (f ReplySinkFunc) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// MessageHandler is implemented by Handler.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in Inbound) Reply
}
