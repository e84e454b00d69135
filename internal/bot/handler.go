package bot

import (
	"context"
	"errors"

	"raskhody/internal/core"
	"raskhody/internal/log"
	"raskhody/internal/metrics"
	"raskhody/internal/storage"
)

// Store is the persistence the handler needs.
type Store interface {
	storage.ExpenseWriter
	storage.ExpenseReader
	storage.UserRegistry
}

// Commands understood by the bot.
const (
	CommandStart = "start"
	CommandTotal = "total"
	CommandHelp  = "help"
)

type Handler struct {
	store   Store
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewHandler(store Store, logger *log.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{
		store:   store,
		logger:  logger.WithComponent(log.ComponentBot),
		metrics: m,
	}
}

var _ MessageHandler = (*Handler)(nil)

// HandleMessage classifies the text, performs at most one store operation
// and returns the reply. It never fails: problems become reply text.
func (h *Handler) HandleMessage(ctx context.Context, in Inbound) Reply {
	intent := core.Classify(in.Text)
	logger := h.logger.With(
		log.FieldMessageID, in.MessageID,
		log.FieldUserID, in.UserID,
		log.FieldIntent, intent.Kind.String(),
	)

	var (
		text    string
		outcome = metrics.OutcomeOK
	)
	switch intent.Kind {
	case core.IntentEmpty:
		text, outcome = usageText, metrics.OutcomeRejected

	case core.IntentCommand:
		text, outcome = h.handleCommand(ctx, logger, in, intent.Command)

	case core.IntentDateQuery:
		text, outcome = h.listDay(ctx, logger, in.UserID, intent.Date.Label(), func() ([]core.ExpenseItem, error) {
			return h.store.ExpensesOn(ctx, in.UserID, intent.Date)
		})

	case core.IntentExpense:
		text, outcome = h.recordExpense(ctx, logger, in.UserID, intent)
	}

	h.metrics.ObserveMessage(intent.Kind.String(), outcome)
	return Reply{Text: text}
}

func (h *Handler) handleCommand(ctx context.Context, logger *log.Logger, in Inbound, command string) (string, string) {
	logger = logger.With(log.FieldCommand, command)

	switch command {
	case CommandStart:
		user := core.User{ID: in.UserID, Username: in.Username, FirstName: in.FirstName}
		if err := h.store.EnsureUser(ctx, user); err != nil {
			logger.ErrorContext(ctx, "Failed to register user",
				log.FieldOperation, storage.OpEnsureUser,
				log.FieldError, err)
			return registerFailedText, metrics.OutcomeStoreError
		}
		logger.InfoContext(ctx, "User registered", "username", in.Username)
		return welcomeText(in.FirstName), metrics.OutcomeOK

	case CommandTotal:
		return h.listDay(ctx, logger, in.UserID, TodayLabel, func() ([]core.ExpenseItem, error) {
			return h.store.ExpensesToday(ctx, in.UserID)
		})

	default:
		return usageText, metrics.OutcomeRejected
	}
}

func (h *Handler) recordExpense(ctx context.Context, logger *log.Logger, userID int64, intent core.Intent) (string, string) {
	amount, err := core.ParseAmount(intent.AmountToken)
	if err != nil {
		logger.DebugContext(ctx, "Rejected amount", log.FieldError, err)
		if errors.Is(err, core.ErrNonPositiveAmount) {
			return nonPositiveAmountText, metrics.OutcomeRejected
		}
		return invalidAmountText, metrics.OutcomeRejected
	}

	fields := log.NewFields().WithExpense(amount.String(), intent.Description)
	if err := h.store.RecordExpense(ctx, userID, amount, intent.Description); err != nil {
		logger.ErrorContext(ctx, "Failed to record expense",
			fields.WithOperation(storage.OpRecordExpense).WithError(err).ToSlice()...)
		return writeFailedText, metrics.OutcomeStoreError
	}

	logger.InfoContext(ctx, "Expense recorded", fields.ToSlice()...)
	return recordedText(amount, intent.Description), metrics.OutcomeOK
}

func (h *Handler) listDay(ctx context.Context, logger *log.Logger, userID int64, label string, read func() ([]core.ExpenseItem, error)) (string, string) {
	items, err := read()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read expenses",
			log.FieldDate, label,
			log.FieldError, err)
		return readFailedText, metrics.OutcomeStoreError
	}

	summary := core.Summarize(label, items)
	logger.DebugContext(ctx, "Expenses listed",
		log.FieldDate, label,
		log.FieldItems, len(summary.Items),
		log.FieldTotal, summary.Total.String())
	return formatSummary(summary), metrics.OutcomeOK
}
