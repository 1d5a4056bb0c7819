package models

import "sort"

// Renumber rewrites every step index to its 0-based position in the slice.
func Renumber(steps []Step) {
	for position := range steps {
		steps[position].Index = position
	}
}

// Sequence orders steps by timestamp (index breaks ties), renumbers them and
// recomputes elapsed_ms relative to the first step.
func Sequence(steps []Step) []Step {
	ordered := make([]Step, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		return ordered[i].Index < ordered[j].Index
	})
	Renumber(ordered)
	if len(ordered) == 0 {
		return ordered
	}
	start := ordered[0].Timestamp
	for position := range ordered {
		ordered[position].ElapsedMS = ordered[position].Timestamp - start
	}
	return ordered
}

// IsStepType reports whether kind is one of the four recorded step types.
func IsStepType(kind string) bool {
	switch kind {
	case StepClick, StepInput, StepChange, StepNavigate:
		return true
	}
	return false
}

// Continue appends incoming steps after existing ones, assigning the next
// indexes and elapsed_ms relative to the first recorded step.
func Continue(existing, incoming []Step) []Step {
	combined := make([]Step, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	if len(incoming) == 0 {
		return combined
	}
	var start int64
	if len(existing) > 0 {
		start = existing[0].Timestamp
	} else {
		start = incoming[0].Timestamp
	}
	for _, step := range incoming {
		step.Index = len(combined)
		step.ElapsedMS = step.Timestamp - start
		if step.ElapsedMS < 0 {
			step.ElapsedMS = 0
		}
		combined = append(combined, step)
	}
	return combined
}

// SameSteps reports whether a and b record the same actions in the same
// order. Instructions and screenshots are ignored.
func SameSteps(a, b []Step) bool {
	if len(a) != len(b) {
		return false
	}
	for position := range a {
		if !sameAction(a[position], b[position]) {
			return false
		}
	}
	return true
}

func sameAction(a, b Step) bool {
	if a.Type != b.Type || a.Timestamp != b.Timestamp || a.URL != b.URL || a.Value != b.Value {
		return false
	}
	if (a.Element == nil) != (b.Element == nil) {
		return false
	}
	return a.Element == nil || (a.Element.XPath == b.Element.XPath && a.Element.Tag == b.Element.Tag)
}

// Rate returns part/whole, or 0 when whole is zero.
func Rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
