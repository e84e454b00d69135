package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"raskhody/internal/bot"
)

// ChatMessage is an inbound user message published by a chat gateway.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	ChatID    int64     `json:"chat_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatReply is published to the reply queue for every answered message.
type ChatReply struct {
	ID        string    `json:"id"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	ChatID    int64     `json:"chat_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage creates a message with a fresh id, as a gateway would.
func NewChatMessage(userID int64, text string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func NewChatReply(inReplyTo string, chatID int64, text string) *ChatReply {
	return &ChatReply{
		ID:        uuid.NewString(),
		InReplyTo: inReplyTo,
		ChatID:    chatID,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChatMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (r *ChatReply) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ChatMessageFromJSON decodes and checks an inbound message.
func ChatMessageFromJSON(data []byte) (*ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == 0 {
		return nil, errors.New("message without user_id")
	}
	return &msg, nil
}

// Inbound converts the message for the bot.
func (m *ChatMessage) Inbound() bot.Inbound {
	return bot.Inbound{
		MessageID:  m.ID,
		UserID:     m.UserID,
		ChatID:     m.ChatID,
		Username:   m.Username,
		FirstName:  m.FirstName,
		Text:       m.Text,
		ReceivedAt: m.Timestamp,
	}
}
