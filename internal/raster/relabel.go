package raster

import "slices"

// RelabelRule rewrites every mask pixel equal to From into To. Rules are
// named so a run log records which domain-specific relabelling was applied.
type RelabelRule struct {
	Name string
	From int16
	To   int16
}

// ApplyRules applies rules in order, in place, and returns how many pixels
// each rule changed.
func ApplyRules(l *Labels, rules []RelabelRule) map[string]int {
	changed := make(map[string]int, len(rules))
	for _, rule := range rules {
		n := 0
		for i, v := range l.Data {
			if v == rule.From {
				l.Data[i] = rule.To
				n++
			}
		}
		changed[rule.Name] = n
	}
	return changed
}

// ShiftOneBased subtracts one from every pixel when the smallest class is 1,
// turning 1-based class masks into 0-based ones. It reports whether a shift
// happened.
func ShiftOneBased(l *Labels) bool {
	if len(l.Data) == 0 || slices.Min(l.Data) != 1 {
		return false
	}
	for i := range l.Data {
		l.Data[i]--
	}
	return true
}

// Classes returns the sorted distinct values present in l.
func Classes(l *Labels) []int16 {
	seen := make(map[int16]struct{})
	for _, v := range l.Data {
		seen[v] = struct{}{}
	}
	out := make([]int16, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
