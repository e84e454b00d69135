package bot

import (
	"fmt"
	"strings"

	"raskhody/internal/core"
)

// TodayLabel names the current day in summaries.
const TodayLabel = "сегодня"

const (
	usageText = "Пожалуйста, отправьте сообщение в формате:\n" +
		"(сумма) (комментарий)\n" +
		"или дату в формате дд.мм.гггг"

	invalidAmountText = "Некорректная сумма. Пожалуйста, отправьте число в формате:\n" +
		"(сумма) (комментарий)\n" +
		"или дату в формате дд.мм.гггг"

	nonPositiveAmountText = "Сумма должна быть положительным числом."

	writeFailedText    = "Извините, произошла ошибка при обработке вашего сообщения."
	readFailedText     = "Извините, произошла ошибка при получении ваших расходов."
	registerFailedText = "Извините, произошла ошибка при добавлении вас в базу данных."
)

func welcomeText(firstName string) string {
	if firstName == "" {
		firstName = "друг"
	}
	return fmt.Sprintf("Привет, %s! Отправляй мне свои расходы в формате:\n\n"+
		"(сумма) (комментарий)\n\n"+
		"Например:\n500 Такси\n\n"+
		"Также вы можете отправить дату в формате дд.мм.гггг, "+
		"чтобы получить расходы за определённый день.", firstName)
}

func recordedText(amount core.Money, description string) string {
	text := fmt.Sprintf("Расход в размере %s добавлен.", amount)
	if description != "" {
		text += fmt.Sprintf(" Комментарий: '%s'.", description)
	}
	return text
}

// FormatExpenseList renders a day's expenses:
//
//	Все траты за 01.03.2024:
//	500 Такси
//	120
//
//	Итого за 01.03.2024: 620
//
// An empty list renders a single "no expenses" line without a total.
func FormatExpenseList(label string, items []core.ExpenseItem, total core.Money) string {
	if len(items) == 0 {
		return fmt.Sprintf("У вас нет расходов за %s.", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Все траты за %s:\n", label)
	for _, it := range items {
		b.WriteString(it.Amount.String())
		if it.Description != "" {
			b.WriteByte(' ')
			b.WriteString(it.Description)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nИтого за %s: %s", label, total)
	return b.String()
}

func formatSummary(s core.DaySummary) string {
	return FormatExpenseList(s.Label, s.Items, s.Total)
}
