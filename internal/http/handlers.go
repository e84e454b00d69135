package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"raskhody/internal/bot"
	"raskhody/internal/core"
	"raskhody/internal/log"
	"raskhody/internal/middleware/trace"
	"raskhody/internal/storage"
)

type messageRequest struct {
	MessageID string `json:"message_id"`
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	Text      string `json:"text"`
}

type messageResponse struct {
	MessageID string `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	Reply     string `json:"reply"`
}

type expenseItem struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

type daySummaryResponse struct {
	UserID int64         `json:"user_id"`
	Label  string        `json:"label"`
	Items  []expenseItem `json:"items"`
	Total  string        `json:"total"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.opts.Store.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMessage runs one chat message through the bot and returns the
// reply in the response body.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.MessageID == "" {
		req.MessageID = trace.RequestID(r.Context())
	}

	in := bot.Inbound{
		MessageID:  req.MessageID,
		UserID:     req.UserID,
		ChatID:     req.ChatID,
		Username:   req.Username,
		FirstName:  req.FirstName,
		Text:       req.Text,
		ReceivedAt: time.Now(),
	}

	reply, err := s.run(r.Context(), in)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Message not handled",
			log.FieldMessageID, in.MessageID,
			log.FieldUserID, in.UserID,
			log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "message could not be processed")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		MessageID: in.MessageID,
		ChatID:    in.ReplyTo(),
		Reply:     reply.Text,
	})
}

var errHandlerFailed = errors.New("message handler failed")

// run handles in on the user's worker shard and waits for the reply.
func (s *Server) run(ctx context.Context, in bot.Inbound) (bot.Reply, error) {
	if s.opts.Pool == nil {
		return s.opts.Handler.HandleMessage(ctx, in), nil
	}

	done := make(chan bot.Reply, 1)
	err := s.opts.Pool.Submit(ctx, in.UserID, func(jobCtx context.Context) {
		defer close(done)
		done <- s.opts.Handler.HandleMessage(jobCtx, in)
	})
	if err != nil {
		return bot.Reply{}, err
	}

	select {
	case reply, ok := <-done:
		if !ok {
			return bot.Reply{}, errHandlerFailed
		}
		return reply, nil
	case <-ctx.Done():
		return bot.Reply{}, ctx.Err()
	}
}

// handleExpenses returns one day of a user's expenses as JSON. Without a
// date query parameter the day is today.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var (
		items []core.ExpenseItem
		label = bot.TodayLabel
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, ok := core.ParseDate(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, (&core.ParseError{Kind: core.ErrInvalidDate, Input: raw}).Error())
			return
		}
		label = day.Label()
		items, err = s.opts.Reader.ExpensesOn(r.Context(), userID, day)
	} else {
		items, err = s.opts.Reader.ExpensesToday(r.Context(), userID)
	}
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to read expenses",
			log.FieldUserID, userID,
			log.FieldError, err)
		writeError(w, storeErrorStatus(err), "failed to read expenses")
		return
	}

	summary := core.Summarize(label, items)
	resp := daySummaryResponse{
		UserID: userID,
		Label:  summary.Label,
		Items:  make([]expenseItem, 0, len(summary.Items)),
		Total:  summary.Total.String(),
	}
	for _, it := range summary.Items {
		resp.Items = append(resp.Items, expenseItem{Amount: it.Amount.String(), Description: it.Description})
	}
	writeJSON(w, http.StatusOK, resp)
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, storage.ErrConnectionFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
