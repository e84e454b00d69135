package core

// DaySummary is what a user gets back for one calendar day.
type DaySummary struct {
	Label string
	Items []ExpenseItem
	Total Money
}

// Sum adds up the amounts of items. The empty sum is zero.
func Sum(items []ExpenseItem) Money {
	total := Money{}
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}

// Summarize builds the summary for items. The total is always recomputed here;
// stores only return rows.
func Summarize(label string, items []ExpenseItem) DaySummary {
	return DaySummary{
		Label: label,
		Items: items,
		Total: Sum(items),
	}
}

func (s DaySummary) Empty() bool {
	return len(s.Items) == 0
}
