package tracking

// CategoryTally counts categories while remembering first-encounter order, so
// that ties resolve to the category seen first in scan order.
type CategoryTally struct {
	counts map[string]int
	order  []string
}

// Add counts one occurrence of category. Empty categories are ignored.
func (t *CategoryTally) Add(category string) {
	t.AddN(category, 1)
}

// AddN counts n occurrences of category.
func (t *CategoryTally) AddN(category string, n int) {
	if category == "" || n <= 0 {
		return
	}
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	if _, seen := t.counts[category]; !seen {
		t.order = append(t.order, category)
	}
	t.counts[category] += n
}

// Top returns the category with the strict maximum count. On a tie the first
// encountered category wins. ok is false when nothing was counted.
func (t *CategoryTally) Top() (category string, ok bool) {
	best := 0
	for _, c := range t.order {
		if n := t.counts[c]; n > best {
			best = n
			category = c
		}
	}
	return category, best > 0
}

// Counts returns a copy of the per-category counts.
func (t *CategoryTally) Counts() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Order returns categories in first-encounter order.
func (t *CategoryTally) Order() []string {
	return append([]string(nil), t.order...)
}
