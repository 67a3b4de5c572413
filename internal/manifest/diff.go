package manifest

// Plan describes how a content cache built for one manifest relates to the
// next one. All slices are sorted.
type Plan struct {
	Unchanged []string `json:"unchanged"`
	Changed   []string `json:"changed"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
}

// Diff compares old and next. A nil old manifest (first activation) reports
// every key of next as added.
func Diff(old, next Resources) Plan {
	var p Plan
	for _, key := range next.Keys() {
		oldFP, ok := old.Fingerprint(key)
		switch {
		case !ok:
			p.Added = append(p.Added, key)
		case oldFP != next[key]:
			p.Changed = append(p.Changed, key)
		default:
			p.Unchanged = append(p.Unchanged, key)
		}
	}
	for _, key := range old.Keys() {
		if !next.Has(key) {
			p.Removed = append(p.Removed, key)
		}
	}
	return p
}

// Refetch returns the number of keys whose content must come from the network
// after moving to the next manifest.
func (p Plan) Refetch() int {
	return len(p.Changed) + len(p.Added)
}
