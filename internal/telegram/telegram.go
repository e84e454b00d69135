// Package telegram connects the bot to the Telegram Bot API with long
// polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"raskhody/internal/bot"
	"raskhody/internal/log"
	"raskhody/internal/worker"
)

// maxMessageLength is the Bot API limit for one text message, in characters.
const maxMessageLength = 4096

// API is the part of tgbotapi.BotAPI the transport uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewAPI authenticates with the bot token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return api, nil
}

// Sender delivers replies with sendMessage.
type Sender struct {
	api API
}

var _ bot.ReplySink = (*Sender)(nil)

func NewSender(api API) *Sender {
	return &Sender{api: api}
}

// Send splits text that exceeds the message limit on line boundaries.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLength) {
		if err := ctx.Err(); err != nil {
			return bot.SendError(err)
		}
		if _, err := s.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return bot.SendError(fmt.Errorf("send to chat %d: %w", chatID, err))
		}
	}
	return nil
}

func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		length  int
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			length = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if length+n > limit {
			flush()
		}
		for n > limit {
			cut := byteOffset(line, limit)
			parts = append(parts, line[:cut])
			line = line[cut:]
			n -= limit
		}
		current.WriteString(line)
		length += n
	}
	flush()
	return parts
}

func byteOffset(s string, runes int) int {
	i := 0
	for offset := range s {
		if i == runes {
			return offset
		}
		i++
	}
	return len(s)
}

// Submitter runs jobs in per-key order. Implemented by worker.Pool.
type Submitter interface {
	Submit(ctx context.Context, key int64, job worker.Job) error
}

// Dispatcher handles one message end to end. Implemented by bot.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, in bot.Inbound) error
}

// Transport polls for updates and hands text messages to the worker pool.
type Transport struct {
	api         API
	pool        Submitter
	dispatcher  Dispatcher
	pollTimeout time.Duration
	logger      *log.Logger
}

func NewTransport(api API, pool Submitter, dispatcher Dispatcher, pollTimeout time.Duration, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Discard()
	}
	return &Transport{
		api:         api,
		pool:        pool,
		dispatcher:  dispatcher,
		pollTimeout: pollTimeout,
		logger:      logger.WithComponent(log.ComponentTelegram),
	}
}

// Run polls until ctx is done.
func (t *Transport) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(t.pollTimeout / time.Second)
	cfg.AllowedUpdates = []string{"message"}

	updates := t.api.GetUpdatesChan(cfg)
	t.logger.InfoContext(ctx, "Polling for updates", "timeout", cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info("Stopped polling", "reason", ctx.Err())
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := InboundFromUpdate(update)
			if !ok {
				continue
			}
			if err := t.pool.Submit(ctx, in.UserID, func(jobCtx context.Context) {
				// Dispatch already logged the failure; nothing is retried.
				_ = t.dispatcher.Dispatch(jobCtx, in)
			}); err != nil {
				t.logger.WarnContext(ctx, "Dropped update",
					log.FieldMessageID, in.MessageID,
					log.FieldUserID, in.UserID,
					log.FieldError, err)
			}
		}
	}
}

// InboundFromUpdate extracts a text message. Other update kinds and
// non-text messages are ignored.
func InboundFromUpdate(u tgbotapi.Update) (bot.Inbound, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.Text == "" {
		return bot.Inbound{}, false
	}
	in := bot.Inbound{
		MessageID:  strconv.Itoa(m.MessageID),
		UserID:     m.From.ID,
		Username:   m.From.UserName,
		FirstName:  m.From.FirstName,
		Text:       m.Text,
		ReceivedAt: m.Time(),
	}
	if m.Chat != nil {
		in.ChatID = m.Chat.ID
	}
	return in, true
}
