package types

// Outcome is the per-element result of a stage that tolerates partial failure.
// Exactly one of Item or Reason is meaningful.
type Outcome[T any] struct {
	Item    *T
	Skipped bool
	Reason  string
}

// Ok wraps a produced item.
func Ok[T any](item T) Outcome[T] {
	return Outcome[T]{Item: &item}
}

// Skip records that an element was dropped and why.
func Skip[T any](reason string) Outcome[T] {
	return Outcome[T]{Skipped: true, Reason: reason}
}

// Items returns the produced items in order, dropping skipped entries.
func Items[T any](outcomes []Outcome[T]) []T {
	items := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Skipped && o.Item != nil {
			items = append(items, *o.Item)
		}
	}
	return items
}

// SkipCount reports how many elements were skipped.
func SkipCount[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}
