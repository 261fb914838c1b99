// Package extract parses feed card fragments into normalized video records.
// It is pure with respect to the page: callers hand it markup, it hands back
// records or an incomplete signal. It never talks to the browser.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the feed's card markup. Update here when the site's markup
// changes; nothing else in the package knows about CSS classes.
const (
	// CardSelector is shared with the navigator, which waits on it to know
	// the feed has rendered.
	CardSelector = "div.sequence-card"

	indexAttr           = "data-index"
	descriptionSelector = "p.text-neutral-900"
	tagSelector         = "span"
)

var (
	embedIDRe = regexp.MustCompile(`embed/([^?#/]+)`)
	thumbIDRe = regexp.MustCompile(`img\.youtube\.com/vi/([^/]+)/`)
)

// Record is one fully extracted feed item. LogicalIndex is the identity key;
// the video id is derived data and may legitimately repeat across indices.
type Record struct {
	LogicalIndex int       `json:"logical_index"`
	VideoID      string    `json:"video_id"`
	VideoURL     string    `json:"video_url"`
	Likes        int       `json:"likes"`
	Comments     int       `json:"comments"`
	Shares       int       `json:"shares"`
	Saves        int       `json:"saves"`
	Tags         []string  `json:"tags"`
	Description  string    `json:"description"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Fragment is one indexed card as found in a snapshot.
type Fragment struct {
	Index int
	sel   *goquery.Selection
}

// Extractor turns fragments into records. Stateless; safe to share.
type Extractor struct {
	fingerprints FingerprintTable
}

// New returns an extractor using the given fingerprint table. A nil table
// selects the defaults.
func New(fingerprints FingerprintTable) *Extractor {
	if fingerprints == nil {
		fingerprints = DefaultFingerprints()
	}
	return &Extractor{fingerprints: fingerprints}
}

// Fragments enumerates the indexed cards present in a snapshot, sorted
// ascending by logical index. Cards without a parseable index attribute are
// skipped; the virtualizer briefly renders placeholder nodes without one.
func Fragments(doc *goquery.Document) []Fragment {
	var frags []Fragment
	doc.Find(CardSelector).Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr(indexAttr)
		if !ok {
			return
		}
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 {
			slog.Debug("skipping card with bad index attribute", "raw", raw)
			return
		}
		frags = append(frags, Fragment{Index: idx, sel: s})
	})
	sort.Slice(frags, func(i, j int) bool { return frags[i].Index < frags[j].Index })
	return frags
}

// ParseSnapshot parses a full-page markup string into a document.
func ParseSnapshot(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("extract: parse snapshot: %w", err)
	}
	return doc, nil
}

// Extract parses a single fragment. complete is false when the card has not
// hydrated its media element yet; such items are rescanned on a later cycle
// and never stored.
func (e *Extractor) Extract(frag Fragment) (rec Record, complete bool) {
	// Recycled nodes can be torn down mid-render; treat a failed parse as
	// not yet hydrated rather than aborting the batch.
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("card parse failed", "index", frag.Index, "panic", r)
			complete = false
		}
	}()

	rec = Record{
		LogicalIndex: frag.Index,
		Tags:         []string{},
		CapturedAt:   time.Now().UTC(),
	}

	rec.VideoID, rec.VideoURL = mediaIdentity(frag.sel)
	if rec.VideoID == "" {
		return rec, false
	}

	e.counters(frag.sel, &rec)
	rec.Tags = tags(frag.sel)
	rec.Description = strings.TrimSpace(frag.sel.Find(descriptionSelector).First().Text())
	return rec, true
}

// mediaIdentity resolves the video id and URL. The embedded player source is
// authoritative; before the player mounts the card shows a thumbnail whose
// URL carries the same id. Neither present means the card is still loading.
func mediaIdentity(sel *goquery.Selection) (id, url string) {
	if src, ok := sel.Find("iframe").First().Attr("src"); ok {
		if m := embedIDRe.FindStringSubmatch(src); m != nil {
			return m[1], src
		}
	}
	var found string
	sel.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok {
			return true
		}
		if m := thumbIDRe.FindStringSubmatch(src); m != nil {
			found = m[1]
			return false
		}
		return true
	})
	if found != "" {
		return found, "https://www.youtube.com/watch?v=" + found
	}
	return "", ""
}

// counters reads the engagement metrics. Each icon's path data is matched
// against the fingerprint table; the value is the text node adjacent to the
// icon. Unknown icons are skipped, absent counters stay zero.
func (e *Extractor) counters(sel *goquery.Selection, rec *Record) {
	sel.Find("svg").Each(func(_ int, icon *goquery.Selection) {
		pathData, ok := icon.Find("path").First().Attr("d")
		if !ok {
			return
		}
		counter := e.fingerprints.lookup(pathData)
		if counter == "" {
			return
		}
		value := parseCount(adjacentText(icon))
		switch counter {
		case CounterLikes:
			rec.Likes = value
		case CounterComments:
			rec.Comments = value
		case CounterShares:
			rec.Shares = value
		case CounterSaves:
			rec.Saves = value
		}
	})
}

// adjacentText finds the counter text for an icon: the next sibling when it
// has one, otherwise whatever text the icon's parent wraps.
func adjacentText(icon *goquery.Selection) string {
	if t := strings.TrimSpace(icon.Next().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(icon.Parent().Text())
}

// tags collects hashtag spans in document order. Duplicates are kept; the
// page repeats tags and downstream consumers want the raw sequence.
func tags(sel *goquery.Selection) []string {
	out := []string{}
	sel.Find(tagSelector).Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if strings.HasPrefix(t, "#") && len(t) > 1 {
			out = append(out, t)
		}
	})
	return out
}

// parseCount parses a counter rendered for humans: "1,234", "12.5K", "3M".
// Anything unparseable counts as zero.
func parseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1e3
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1e6
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f * mult)
}
