package paginate

import (
	"sort"

	"github.com/dgnsrekt/odb_agent/internal/extract"
)

// session is the mutable bookkeeping for one run. It only ever grows:
// indices are never un-processed and items are never evicted, which is what
// makes rescanning recycled DOM nodes idempotent. A fresh session is built
// per run and discarded with it.
type session struct {
	processed        map[int]struct{}
	items            map[int]extract.Record
	highestIndexSeen int
	noProgressStreak int
	scrollPos        int
	containerHeight  int
	stalledScrolls   int
}

func newSession() *session {
	return &session{
		processed:        make(map[int]struct{}),
		items:            make(map[int]extract.Record),
		highestIndexSeen: -1,
	}
}

// capture stores a completed item. Keyed by logical index; a later sighting
// of the same index is ignored by the scan loop, so first capture wins.
func (s *session) capture(rec extract.Record) {
	s.processed[rec.LogicalIndex] = struct{}{}
	s.items[rec.LogicalIndex] = rec
}

func (s *session) isProcessed(index int) bool {
	_, ok := s.processed[index]
	return ok
}

func (s *session) observe(index int) {
	if index > s.highestIndexSeen {
		s.highestIndexSeen = index
	}
}

// ordered returns the captured records sorted ascending by logical index.
func (s *session) ordered() []extract.Record {
	out := make([]extract.Record, 0, len(s.items))
	for _, rec := range s.items {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LogicalIndex < out[j].LogicalIndex
	})
	return out
}
