package core

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  IntentKind
		token string
		desc  string
		cmd   string
	}{
		{name: "empty", text: "", want: IntentEmpty},
		{name: "only whitespace", text: " \t\n ", want: IntentEmpty},
		{name: "amount with description", text: "500 Такси", want: IntentExpense, token: "500", desc: "Такси"},
		{name: "amount only", text: "500", want: IntentExpense, token: "500"},
		{name: "decimal comma", text: "12,5 кофе с собой", want: IntentExpense, token: "12,5", desc: "кофе с собой"},
		{name: "whitespace run", text: "  42 \t  обед   в кафе  ", want: IntentExpense, token: "42", desc: "обед   в кафе"},
		{name: "newline separator", text: "42\nобед", want: IntentExpense, token: "42", desc: "обед"},
		{name: "invalid amount still expense", text: "abc", want: IntentExpense, token: "abc"},
		{name: "negative amount", text: "-10 refund", want: IntentExpense, token: "-10", desc: "refund"},
		{name: "date", text: "15.03.2024", want: IntentDateQuery},
		{name: "date with surrounding spaces", text: "  15.03.2024 ", want: IntentDateQuery},
		{name: "impossible date is an expense", text: "31.02.2024", want: IntentExpense, token: "31.02.2024"},
		{name: "date with comment is an expense", text: "15.03.2024 что-то", want: IntentExpense, token: "15.03.2024", desc: "что-то"},
		{name: "command", text: "/start", want: IntentCommand, cmd: "start"},
		{name: "command with bot suffix", text: "/Total@raskhody_bot now", want: IntentCommand, cmd: "total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got.Kind != tt.want {
				t.Fatalf("Classify(%q).Kind = %v, want %v", tt.text, got.Kind, tt.want)
			}
			if got.AmountToken != tt.token {
				t.Errorf("AmountToken = %q, want %q", got.AmountToken, tt.token)
			}
			if got.Description != tt.desc {
				t.Errorf("Description = %q, want %q", got.Description, tt.desc)
			}
			if got.Command != tt.cmd {
				t.Errorf("Command = %q, want %q", got.Command, tt.cmd)
			}
		})
	}
}

func TestClassifyValidDatesAreNeverExpenses(t *testing.T) {
	for y := 1999; y <= 2001; y++ {
		for m := 1; m <= 12; m++ {
			for d := 1; d <= 31; d++ {
				date := NewDate(y, m, d)
				if date.Day() != d {
					continue // normalized overflow such as 31.04
				}
				got := Classify(date.Label())
				if got.Kind != IntentDateQuery || !got.Date.Equal(date.Time) {
					t.Fatalf("Classify(%q) = %+v", date.Label(), got)
				}
			}
		}
	}
}

func TestIntentKindString(t *testing.T) {
	if IntentDateQuery.String() != "date_query" || IntentKind(42).String() != "unknown" {
		t.Fatal("unexpected intent names")
	}
}
