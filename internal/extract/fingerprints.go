package extract

// Counter identifies one engagement metric on a card.
type Counter string

const (
	CounterLikes    Counter = "likes"
	CounterComments Counter = "comments"
	CounterShares   Counter = "shares"
	CounterSaves    Counter = "saves"
)

// FingerprintTable maps an icon's vector-path prefix to the counter it
// labels. The icons carry no semantic classes or aria labels, so the path
// data is the only stable handle. Matching is prefix-based because the
// site occasionally re-exports icons with trailing segments changed.
type FingerprintTable map[string]Counter

// DefaultFingerprints covers the Material Design icon set the feed ships
// today. Update here when the site swaps icon packs.
func DefaultFingerprints() FingerprintTable {
	return FingerprintTable{
		"M12 21.35l-1.45-1.32C5.4 15.36 2 12.28 2 8.5":               CounterLikes,
		"M20 2H4c-1.1 0-2 .9-2 2v18l4-4h14c1.1":                      CounterComments,
		"M18 16.08c-.76 0-1.44.3-1.96.77L8.91 12.7":                  CounterShares,
		"M17 3H7c-1.1 0-1.99.9-1.99 2L5 21l7-3 7 3V5c0-1.1-.9-2-2-2": CounterSaves,
	}
}

// lookup returns the counter for a path attribute, or "" when the icon is
// not in the table.
func (t FingerprintTable) lookup(pathData string) Counter {
	for prefix, c := range t {
		if len(pathData) >= len(prefix) && pathData[:len(prefix)] == prefix {
			return c
		}
	}
	return ""
}
