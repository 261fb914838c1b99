package paginate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeCollab serves scripted snapshots, one per scan cycle, with a plain
// clamped scroll model. The last snapshot repeats once the script runs out.
type fakeCollab struct {
	snapshots []string
	height    int

	scans   int
	failAt  int // scan number at which Snapshot fails; 0 = never
	offset  int
	settles int
}

func (f *fakeCollab) Snapshot(ctx context.Context) (string, error) {
	f.scans++
	if f.failAt > 0 && f.scans >= f.failAt {
		return "", errors.New("tab gone")
	}
	i := f.scans - 1
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	return f.snapshots[i], nil
}

func (f *fakeCollab) ScrollContainerTo(ctx context.Context, offset int) (int, error) {
	if offset > f.height {
		offset = f.height
	}
	if offset < 0 {
		offset = 0
	}
	f.offset = offset
	return f.offset, nil
}

func (f *fakeCollab) ContainerExtent(ctx context.Context) (int, int, error) {
	return f.offset, f.height, nil
}

func (f *fakeCollab) Elapse(ctx context.Context, d time.Duration) error {
	f.settles++
	return ctx.Err()
}

func completeCard(index int, videoID string) string {
	return fmt.Sprintf(
		`<div class="sequence-card" data-index="%d"><iframe src="https://www.youtube.com/embed/%s"></iframe><span>#tag%d</span></div>`,
		index, videoID, index)
}

func placeholderCard(index int) string {
	return fmt.Sprintf(`<div class="sequence-card" data-index="%d"><div class="spinner"></div></div>`, index)
}

func feedPage(cards ...string) string {
	body := ""
	for _, c := range cards {
		body += c
	}
	return `<html><body><main>` + body + `</main></body></html>`
}

func testOptions() Options {
	return Options{
		ScrollStepPx:        300,
		NoProgressThreshold: 3,
		SettleWait:          time.Millisecond,
		SettleRetries:       1,
	}
}

func TestRun_StaticFeedCapturesOnceAndTerminates(t *testing.T) {
	page := feedPage(
		completeCard(0, "vid0"),
		completeCard(1, "vid1"),
		completeCard(2, "vid2"),
	)
	collab := &fakeCollab{snapshots: []string{page}, height: 600}
	p := New(collab, nil, testOptions())

	items, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v; want nil", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d; want 3", len(items))
	}
	for i, rec := range items {
		if rec.LogicalIndex != i {
			t.Fatalf("items[%d].LogicalIndex = %d; want %d", i, rec.LogicalIndex, i)
		}
		if rec.VideoID == "" {
			t.Fatalf("items[%d].VideoID is empty", i)
		}
	}
	// One productive scan, then the no-progress streak and the stalled
	// scrollbar wind down the run.
	maxScans := 1 + testOptions().NoProgressThreshold + 2
	if collab.scans > maxScans {
		t.Fatalf("scans = %d; want <= %d", collab.scans, maxScans)
	}
}

func TestRun_LateHydrationRetriedNotDuplicated(t *testing.T) {
	early := feedPage(
		completeCard(0, "vid0"),
		completeCard(1, "vid1"),
		placeholderCard(5),
	)
	late := feedPage(
		completeCard(0, "vid0"),
		completeCard(1, "vid1"),
		completeCard(5, "vid5"),
	)
	collab := &fakeCollab{snapshots: []string{early, early, late}, height: 2000}
	p := New(collab, nil, testOptions())

	items, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v; want nil", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d; want 3", len(items))
	}
	last := items[len(items)-1]
	if last.LogicalIndex != 5 || last.VideoID != "vid5" {
		t.Fatalf("last item = %+v; want index 5, vid5", last)
	}
	seen := map[int]int{}
	for _, rec := range items {
		seen[rec.LogicalIndex]++
	}
	if seen[5] != 1 {
		t.Fatalf("index 5 captured %d times; want 1", seen[5])
	}
}

func TestRun_GrowingFeedOrderedOutput(t *testing.T) {
	first := feedPage(completeCard(2, "vid2"), completeCard(0, "vid0"))
	second := feedPage(completeCard(4, "vid4"), completeCard(1, "vid1"), completeCard(3, "vid3"))
	collab := &fakeCollab{snapshots: []string{first, second}, height: 900}
	p := New(collab, nil, testOptions())

	items, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v; want nil", err)
	}
	if len(items) != 5 {
		t.Fatalf("len(items) = %d; want 5", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].LogicalIndex <= items[i-1].LogicalIndex {
			t.Fatalf("items not strictly ascending at %d: %d then %d",
				i, items[i-1].LogicalIndex, items[i].LogicalIndex)
		}
	}
}

func TestRun_RestartableWithFreshSession(t *testing.T) {
	page := feedPage(completeCard(0, "vid0"), completeCard(1, "vid1"))
	collab := &fakeCollab{snapshots: []string{page}, height: 400}
	p := New(collab, nil, testOptions())

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() error = %v; want nil", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v; want nil", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("run sizes = %d, %d; want 2, 2", len(first), len(second))
	}
	for i := range first {
		if first[i].LogicalIndex != second[i].LogicalIndex || first[i].VideoID != second[i].VideoID {
			t.Fatalf("runs diverge at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRun_CollaboratorFailureReturnsPartial(t *testing.T) {
	page := feedPage(completeCard(0, "vid0"), completeCard(1, "vid1"))
	collab := &fakeCollab{snapshots: []string{page}, height: 2000, failAt: 2}
	p := New(collab, nil, testOptions())

	items, err := p.Run(context.Background())
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("Run() error = %v; want ErrCollaboratorUnavailable", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d; want 2 partial items", len(items))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collab := &fakeCollab{snapshots: []string{feedPage(completeCard(0, "vid0"))}, height: 400}
	items, err := New(collab, nil, testOptions()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v; want context.Canceled", err)
	}
	if len(items) != 0 {
		t.Fatalf("len(items) = %d; want 0", len(items))
	}
}

func TestRun_IncompleteItemsNeverStored(t *testing.T) {
	page := feedPage(completeCard(0, "vid0"), placeholderCard(1), placeholderCard(2))
	collab := &fakeCollab{snapshots: []string{page}, height: 300}
	p := New(collab, nil, testOptions())

	items, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v; want nil", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d; want 1", len(items))
	}
	if items[0].LogicalIndex != 0 {
		t.Fatalf("items[0].LogicalIndex = %d; want 0", items[0].LogicalIndex)
	}
}

func TestSession_MonotonicBookkeeping(t *testing.T) {
	s := newSession()
	if s.highestIndexSeen != -1 {
		t.Fatalf("highestIndexSeen = %d; want -1", s.highestIndexSeen)
	}
	s.observe(9)
	s.observe(4)
	if s.highestIndexSeen != 9 {
		t.Fatalf("highestIndexSeen = %d; want 9", s.highestIndexSeen)
	}
	if s.isProcessed(4) {
		t.Fatalf("isProcessed(4) = true before capture")
	}
}
