package core

import (
	"strings"
	"unicode"
)

type IntentKind int

const (
	IntentEmpty IntentKind = iota
	IntentCommand
	IntentDateQuery
	IntentExpense
)

func (k IntentKind) String() string {
	switch k {
	case IntentEmpty:
		return "empty"
	case IntentCommand:
		return "command"
	case IntentDateQuery:
		return "date_query"
	case IntentExpense:
		return "expense"
	default:
		return "unknown"
	}
}

// Intent is the classified meaning of one inbound message.
type Intent struct {
	Kind IntentKind

	// IntentCommand
	Command string

	// IntentDateQuery
	Date Date

	// IntentExpense
	AmountToken string
	Description string
}

// Classify decides what a message means. It never fails: text that is not
// a command or a date is an expense entry whose amount may still be invalid.
// The date pattern is tried before the expense split.
func Classify(text string) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{Kind: IntentEmpty}
	}

	if strings.HasPrefix(text, "/") {
		return Intent{Kind: IntentCommand, Command: commandName(text)}
	}

	if d, ok := ParseDate(text); ok {
		return Intent{Kind: IntentDateQuery, Date: d}
	}

	token, rest := splitFirstField(text)
	return Intent{
		Kind:        IntentExpense,
		AmountToken: token,
		Description: rest,
	}
}

// commandName turns "/Total@my_bot now" into "total".
func commandName(text string) string {
	name, _ := splitFirstField(strings.TrimPrefix(text, "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

// splitFirstField splits on the first run of whitespace. text must be trimmed.
func splitFirstField(text string) (string, string) {
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx:])
}
