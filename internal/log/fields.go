package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMessageID   = "message_id"
	FieldUserID      = "user_id"
	FieldChatID      = "chat_id"
	FieldIntent      = "intent"
	FieldCommand     = "command"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldDate        = "date"
	FieldItems       = "items"
	FieldTotal       = "total"
	FieldTransport   = "transport"
	FieldBackend     = "backend"
	FieldShard       = "shard"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentBot      = "bot"
	ComponentHTTP     = "http"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentTelegram = "telegram"
	ComponentWorker   = "worker"
	ComponentMigrate  = "migrate"
)

// Operations defines standard operation names
const (
	OpHandle    = "handle"
	OpSendReply = "send_reply"
	OpConsume   = "consume"
	OpMigrate   = "migrate"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the user and chat identifiers
func (f LogFields) WithUser(userID, chatID int64) LogFields {
	f[FieldUserID] = userID
	if chatID != 0 && chatID != userID {
		f[FieldChatID] = chatID
	}
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(amount, description string) LogFields {
	f[FieldAmount] = amount
	f[FieldDescription] = description
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
