package extract

import (
	"fmt"
	"testing"
)

const likesPath = "M12 21.35l-1.45-1.32C5.4 15.36 2 12.28 2 8.5 2 5.42 4.42 3 7.5 3z"
const commentsPath = "M20 2H4c-1.1 0-2 .9-2 2v18l4-4h14c1.1 0 2-.9 2-2V4z"
const bookmarkPath = "M17 3H7c-1.1 0-1.99.9-1.99 2L5 21l7-3 7 3V5c0-1.1-.9-2-2-2z"

func card(index int, inner string) string {
	return fmt.Sprintf(`<div class="sequence-card" data-index="%d">%s</div>`, index, inner)
}

func page(cards ...string) string {
	body := ""
	for _, c := range cards {
		body += c
	}
	return `<html><body><main>` + body + `</main></body></html>`
}

func mustDoc(t *testing.T, markup string) []Fragment {
	t.Helper()
	doc, err := ParseSnapshot(markup)
	if err != nil {
		t.Fatalf("ParseSnapshot() = %v; want nil", err)
	}
	return Fragments(doc)
}

func TestFragments_SortedAndFiltered(t *testing.T) {
	markup := page(
		card(7, `<iframe src="https://www.youtube.com/embed/ccc"></iframe>`),
		card(2, `<iframe src="https://www.youtube.com/embed/aaa"></iframe>`),
		`<div class="sequence-card">no index</div>`,
		`<div class="sequence-card" data-index="junk">bad index</div>`,
		card(5, `<iframe src="https://www.youtube.com/embed/bbb"></iframe>`),
	)
	frags := mustDoc(t, markup)
	if len(frags) != 3 {
		t.Fatalf("len(frags) = %d; want 3", len(frags))
	}
	for i, want := range []int{2, 5, 7} {
		if frags[i].Index != want {
			t.Fatalf("frags[%d].Index = %d; want %d", i, frags[i].Index, want)
		}
	}
}

func TestExtract_CompleteCard(t *testing.T) {
	inner := `
		<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ?autoplay=0"></iframe>
		<div><svg><path d="` + likesPath + `"/></svg><span>1,234</span></div>
		<div><svg><path d="` + commentsPath + `"/></svg><span>56</span></div>
		<span class="py-2">#judo</span>
		<span class="py-2">#grappling</span>
		<span class="py-2">#judo</span>
		<p class="text-neutral-900">Uchi mata from a high grip.</p>`
	frags := mustDoc(t, page(card(3, inner)))
	if len(frags) != 1 {
		t.Fatalf("len(frags) = %d; want 1", len(frags))
	}

	rec, complete := New(nil).Extract(frags[0])
	if !complete {
		t.Fatalf("complete = false; want true")
	}
	if rec.LogicalIndex != 3 {
		t.Fatalf("LogicalIndex = %d; want 3", rec.LogicalIndex)
	}
	if rec.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("VideoID = %q; want %q", rec.VideoID, "dQw4w9WgXcQ")
	}
	if rec.VideoURL != "https://www.youtube.com/embed/dQw4w9WgXcQ?autoplay=0" {
		t.Fatalf("VideoURL = %q", rec.VideoURL)
	}
	if rec.Likes != 1234 || rec.Comments != 56 {
		t.Fatalf("Likes, Comments = %d, %d; want 1234, 56", rec.Likes, rec.Comments)
	}
	if rec.Shares != 0 || rec.Saves != 0 {
		t.Fatalf("Shares, Saves = %d, %d; want 0, 0", rec.Shares, rec.Saves)
	}
	wantTags := []string{"#judo", "#grappling", "#judo"}
	if len(rec.Tags) != len(wantTags) {
		t.Fatalf("Tags = %v; want %v", rec.Tags, wantTags)
	}
	for i, w := range wantTags {
		if rec.Tags[i] != w {
			t.Fatalf("Tags[%d] = %q; want %q", i, rec.Tags[i], w)
		}
	}
	if rec.Description != "Uchi mata from a high grip." {
		t.Fatalf("Description = %q", rec.Description)
	}
	if rec.CapturedAt.IsZero() {
		t.Fatalf("CapturedAt is zero")
	}
}

func TestExtract_ThumbnailFallback(t *testing.T) {
	inner := `<img src="https://img.youtube.com/vi/abc123/hqdefault.jpg">`
	frags := mustDoc(t, page(card(0, inner)))

	rec, complete := New(nil).Extract(frags[0])
	if !complete {
		t.Fatalf("complete = false; want true")
	}
	if rec.VideoID != "abc123" {
		t.Fatalf("VideoID = %q; want %q", rec.VideoID, "abc123")
	}
	if rec.VideoURL != "https://www.youtube.com/watch?v=abc123" {
		t.Fatalf("VideoURL = %q", rec.VideoURL)
	}
}

func TestExtract_UnhydratedCardIsIncomplete(t *testing.T) {
	inner := `<div class="placeholder"></div><span>#tag</span>`
	frags := mustDoc(t, page(card(4, inner)))

	_, complete := New(nil).Extract(frags[0])
	if complete {
		t.Fatalf("complete = true; want false")
	}
}

func TestExtract_UnknownIconIgnored(t *testing.T) {
	inner := `
		<iframe src="https://www.youtube.com/embed/vid1"></iframe>
		<div><svg><path d="M1 1L9 9z"/></svg><span>999</span></div>`
	frags := mustDoc(t, page(card(1, inner)))

	rec, complete := New(nil).Extract(frags[0])
	if !complete {
		t.Fatalf("complete = false; want true")
	}
	if rec.Likes != 0 {
		t.Fatalf("Likes = %d; want 0", rec.Likes)
	}
}

func TestExtract_CustomFingerprintTable(t *testing.T) {
	inner := `
		<iframe src="https://www.youtube.com/embed/vid1"></iframe>
		<div><svg><path d="M1 1L9 9z"/></svg><span>7</span></div>`
	frags := mustDoc(t, page(card(1, inner)))

	table := FingerprintTable{"M1 1L9 9": CounterSaves}
	rec, _ := New(table).Extract(frags[0])
	if rec.Saves != 7 {
		t.Fatalf("Saves = %d; want 7", rec.Saves)
	}
}

func TestExtract_BookmarkCounter(t *testing.T) {
	inner := `
		<iframe src="https://www.youtube.com/embed/vid1"></iframe>
		<div><svg><path d="` + bookmarkPath + `"/></svg><span>12</span></div>`
	frags := mustDoc(t, page(card(1, inner)))

	rec, _ := New(nil).Extract(frags[0])
	if rec.Saves != 12 {
		t.Fatalf("Saves = %d; want 12", rec.Saves)
	}
}

func TestExtract_MissingDescription(t *testing.T) {
	inner := `<iframe src="https://www.youtube.com/embed/vid1"></iframe>`
	frags := mustDoc(t, page(card(2, inner)))

	rec, _ := New(nil).Extract(frags[0])
	if rec.Description != "" {
		t.Fatalf("Description = %q; want empty", rec.Description)
	}
	if len(rec.Tags) != 0 {
		t.Fatalf("Tags = %v; want empty", rec.Tags)
	}
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"42", 42},
		{"1,234", 1234},
		{"12.5K", 12500},
		{"3M", 3000000},
		{"", 0},
		{"likes", 0},
		{"-5", 0},
	}
	for _, c := range cases {
		if got := parseCount(c.in); got != c.want {
			t.Fatalf("parseCount(%q) = %d; want %d", c.in, got, c.want)
		}
	}
}
