package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		kind error
	}{
		{"500", "500", nil},
		{"12,5", "12.5", nil},
		{"12.5", "12.5", nil},
		{"0.01", "0.01", nil},
		{"12.50", "12.5", nil},
		{"5.", "5", nil},
		{".5", "0.5", nil},
		{"+7", "7", nil},
		{"1e3", "1000", nil},
		{"1.005", "1.005", nil}, // no rounding
		{"-3", "", ErrNonPositiveAmount},
		{"0", "", ErrNonPositiveAmount},
		{"0,00", "", ErrNonPositiveAmount},
		{"-0.5", "", ErrNonPositiveAmount},
		{"abc", "", ErrInvalidAmount},
		{"", "", ErrInvalidAmount},
		{"1.2.3", "", ErrInvalidAmount},
		{"1,2,3", "", ErrInvalidAmount},
		{"1 000", "", ErrInvalidAmount},
		{"12р", "", ErrInvalidAmount},
		{"NaN", "", ErrInvalidAmount},
		{"inf", "", ErrInvalidAmount},
		{"1e999", "", ErrInvalidAmount},
		{"0x10", "", ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.kind == nil {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, tc.kind) {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.kind, err)
		}
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Input != tc.in {
			t.Fatalf("%q expected *ParseError carrying the input, got %#v", tc.in, err)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := MustParseAmount("0.01").Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{}).Validate(); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount for zero, got %v", err)
	}
}

func TestSumIsExact(t *testing.T) {
	items := []ExpenseItem{
		{Amount: MustParseAmount("0.1")},
		{Amount: MustParseAmount("0.2")},
		{Amount: MustParseAmount("500"), Description: "Такси"},
	}
	if got := Sum(items).String(); got != "500.3" {
		t.Fatalf("expected 500.3, got %s", got)
	}
	if got := Sum(nil).String(); got != "0" {
		t.Fatalf("expected empty sum 0, got %s", got)
	}
}

func TestSummarizeRecomputesTotal(t *testing.T) {
	items := []ExpenseItem{
		{Amount: MustParseAmount("12,5"), Description: "кофе"},
		{Amount: MustParseAmount("100")},
	}
	s := Summarize("сегодня", items)
	if s.Empty() {
		t.Fatal("summary should not be empty")
	}
	if !s.Total.Equal(MustParseAmount("112.5")) {
		t.Fatalf("unexpected total %s", s.Total)
	}
	if !Summarize("x", nil).Empty() {
		t.Fatal("summary of no items should be empty")
	}
}
