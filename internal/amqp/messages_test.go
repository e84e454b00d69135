package amqp

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewChatReply(t *testing.T) {
	reply := NewChatReply("in-1", 77, "Расход в размере 5 добавлен.")

	if _, err := uuid.Parse(reply.ID); err != nil {
		t.Errorf("reply ID %q is not a uuid: %v", reply.ID, err)
	}
	if reply.InReplyTo != "in-1" || reply.ChatID != 77 {
		t.Errorf("reply = %+v", reply)
	}
	if time.Since(reply.Timestamp) > time.Second {
		t.Error("NewChatReply() Timestamp should be recent")
	}
}

func TestChatMessageFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "full message",
			body: `{"id":"m-1","user_id":10,"chat_id":-5,"username":"ivan","first_name":"Иван","text":"500 Такси","timestamp":"2024-03-15T12:00:00Z"}`,
		},
		{
			name:    "not json",
			body:    `500 Такси`,
			wantErr: true,
		},
		{
			name:    "wrong type",
			body:    `{"user_id":"ten","text":"x"}`,
			wantErr: true,
		},
		{
			name:    "missing user",
			body:    `{"id":"m-1","text":"x"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ChatMessageFromJSON([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ChatMessageFromJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			in := msg.Inbound()
			if in.MessageID != "m-1" || in.UserID != 10 || in.ReplyTo() != -5 || in.Text != "500 Такси" {
				t.Errorf("Inbound() = %+v", in)
			}
			if !in.ReceivedAt.Equal(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)) {
				t.Errorf("ReceivedAt = %v", in.ReceivedAt)
			}
		})
	}
}

func TestNewChatMessage(t *testing.T) {
	msg := NewChatMessage(3, "15.03.2024")
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := ChatMessageFromJSON(body)
	if err != nil {
		t.Fatalf("ChatMessageFromJSON: %v", err)
	}
	if parsed.ID != msg.ID || parsed.UserID != 3 {
		t.Errorf("parsed = %+v", parsed)
	}
}
