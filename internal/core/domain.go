package core

import (
	"errors"
	"fmt"
	"time"
)

type (
	// Date is a calendar day. The wrapped time is midnight UTC of that day.
	Date struct {
		time.Time
	}

	User struct {
		ID        int64
		Username  string
		FirstName string
		CreatedAt time.Time
	}

	Expense struct {
		ID          int64
		UserID      int64
		Amount      Money
		Description string // empty when the user gave no comment
		CreatedAt   time.Time
	}

	// ExpenseItem is the part of an expense shown back to the user.
	ExpenseItem struct {
		Amount      Money
		Description string
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrInvalidDate       = errors.New("invalid date")
)

// ParseError reports user input that could not be turned into a value.
// Kind is one of ErrInvalidAmount, ErrNonPositiveAmount or ErrInvalidDate.
type ParseError struct {
	Kind  error
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// Item drops the bookkeeping fields of an expense.
func (e Expense) Item() ExpenseItem {
	return ExpenseItem{Amount: e.Amount, Description: e.Description}
}
