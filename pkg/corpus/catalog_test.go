package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/haivivi/minibatch/pkg/htk"
	"github.com/haivivi/minibatch/pkg/lattice"
	"github.com/haivivi/minibatch/pkg/mat"
	"github.com/haivivi/minibatch/pkg/mlf"
	"github.com/haivivi/minibatch/pkg/storage"
)

// writeTestArchive writes one archive of dim x frames whose column j holds
// base+j in every row.
func writeTestArchive(t *testing.T, dir, name string, dim, frames int, base float32) {
	t.Helper()
	m := mat.New(dim, frames)
	for j := 0; j < frames; j++ {
		for i := 0; i < dim; i++ {
			m.Set(i, j, base+float32(j))
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := htk.Write(f, "USER", 100000, m); err != nil {
		t.Fatal(err)
	}
}

// uniformLabels builds a single-segment label map entry covering n frames.
func uniformLabels(classID, n int) []mlf.Segment {
	return []mlf.Segment{{FirstFrame: 0, NumFrames: n, ClassID: classID, PhoneStart: 1}}
}

func TestBuildUnsupervised(t *testing.T) {
	c, err := Build(BuildOptions{
		InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]", "c.feat[0,9]"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.NumUtterances != 3 || c.TotalFrames != 20 {
		t.Errorf("utts=%d frames=%d", c.NumUtterances, c.TotalFrames)
	}
	if len(c.Chunks[0]) != 1 {
		t.Errorf("chunks=%d, want 1", len(c.Chunks[0]))
	}
	if c.Supervised() {
		t.Error("unsupervised corpus reports supervised")
	}
	ch := c.Chunks[0][0]
	if ch.NumUtterances() != 3 || ch.TotalFrames() != 20 {
		t.Errorf("chunk utts=%d frames=%d", ch.NumUtterances(), ch.TotalFrames())
	}
	if got := ch.NumFrames(1); got != 6 {
		t.Errorf("numFrames(1)=%d", got)
	}
}

func TestBuildSupervised(t *testing.T) {
	labels := map[string][]mlf.Segment{
		"a": {{FirstFrame: 0, NumFrames: 2, ClassID: 0, PhoneStart: 1}, {FirstFrame: 2, NumFrames: 2, ClassID: 1}},
		"b": uniformLabels(1, 6),
	}
	c, err := Build(BuildOptions{
		InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]"}},
		Labels:  []map[string][]mlf.Segment{labels},
		UDim:    []int{4},
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalFrames != 10 {
		t.Fatalf("frames=%d", c.TotalFrames)
	}
	if got := c.Labels.NumClasses(0); got != 2 {
		t.Errorf("classes=%d", got)
	}
	counts := c.Labels.Counts(0)
	if counts[0] != 2 || counts[1] != 8 {
		t.Errorf("counts=%v", counts)
	}

	// per-utterance views with sentinel verification
	ch := c.Chunks[0][0]
	view, err := c.Labels.ClassIDs(0, ch.ClassIDsBegin(0), ch.NumFrames(0))
	if err != nil {
		t.Fatal(err)
	}
	want := []int32{0, 0, 1, 1}
	for i, w := range want {
		if view.At(i) != w {
			t.Errorf("classID[%d]=%d, want %d", i, view.At(i), w)
		}
	}
	pb, err := c.Labels.PhoneBoundaries(0, ch.ClassIDsBegin(0), ch.NumFrames(0))
	if err != nil {
		t.Fatal(err)
	}
	if pb.At(0) != 1 || pb.At(1) != 0 || pb.At(2) != 0 {
		t.Errorf("phoneBounds=[%d %d %d ...]", pb.At(0), pb.At(1), pb.At(2))
	}
}

func TestBuildInvalidation(t *testing.T) {
	t.Run("stream count mismatch", func(t *testing.T) {
		_, err := Build(BuildOptions{
			InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]"}, {"a2.feat[0,3]"}},
		})
		if !errors.Is(err, ErrConfig) {
			t.Errorf("err=%v", err)
		}
	})

	t.Run("duration mismatch across streams skips", func(t *testing.T) {
		c, err := Build(BuildOptions{
			InFiles: [][]string{
				{"a.feat[0,3]", "b.feat[0,5]", "c.feat[0,9]"},
				{"a2.feat[0,3]", "b2.feat[0,7]", "c2.feat[0,9]"},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if c.NumUtterances != 2 || c.TotalFrames != 14 {
			t.Errorf("utts=%d frames=%d", c.NumUtterances, c.TotalFrames)
		}
	})

	t.Run("too many invalid", func(t *testing.T) {
		// 2 of 3 have a 1-frame duration (below minimum)
		_, err := Build(BuildOptions{
			InFiles: [][]string{{"a.feat[0,0]", "b.feat[0,0]", "c.feat[0,9]"}},
		})
		if !errors.Is(err, ErrTooManyInvalid) {
			t.Errorf("err=%v", err)
		}
	})

	t.Run("missing labels skip", func(t *testing.T) {
		labels := map[string][]mlf.Segment{
			"a": uniformLabels(0, 4),
			"b": uniformLabels(0, 6),
		}
		c, err := Build(BuildOptions{
			InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]", "c.feat[0,9]"}},
			Labels:  []map[string][]mlf.Segment{labels},
			UDim:    []int{2},
		})
		if err != nil {
			t.Fatal(err)
		}
		if c.NumUtterances != 2 || c.TotalFrames != 10 {
			t.Errorf("utts=%d frames=%d", c.NumUtterances, c.TotalFrames)
		}
	})

	t.Run("label duration mismatch skips", func(t *testing.T) {
		labels := map[string][]mlf.Segment{
			"a": uniformLabels(0, 4),
			"b": uniformLabels(0, 5), // feature file has 6
			"c": uniformLabels(0, 10),
		}
		c, err := Build(BuildOptions{
			InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]", "c.feat[0,9]"}},
			Labels:  []map[string][]mlf.Segment{labels},
			UDim:    []int{2},
		})
		if err != nil {
			t.Fatal(err)
		}
		if c.NumUtterances != 2 {
			t.Errorf("utts=%d", c.NumUtterances)
		}
	})
}

func TestBuildFatalLabelErrors(t *testing.T) {
	t.Run("class id exceeds udim", func(t *testing.T) {
		labels := map[string][]mlf.Segment{"a": uniformLabels(5, 4)}
		_, err := Build(BuildOptions{
			InFiles: [][]string{{"a.feat[0,3]"}},
			Labels:  []map[string][]mlf.Segment{labels},
			UDim:    []int{4},
		})
		if !errors.Is(err, ErrConfig) {
			t.Errorf("err=%v", err)
		}
	})

	t.Run("non-contiguous segments", func(t *testing.T) {
		labels := map[string][]mlf.Segment{"a": {
			{FirstFrame: 0, NumFrames: 2, ClassID: 0},
			{FirstFrame: 3, NumFrames: 1, ClassID: 1}, // gap at frame 2
		}}
		_, err := Build(BuildOptions{
			InFiles: [][]string{{"a.feat[0,3]"}},
			Labels:  []map[string][]mlf.Segment{labels},
			UDim:    []int{2},
		})
		if !errors.Is(err, ErrConfig) {
			t.Errorf("err=%v", err)
		}
	})
}

func TestBuildChunkPacking(t *testing.T) {
	// 10 utterances of 30000 frames: 90000-frame target seals a chunk
	// after it exceeds the target, so chunks hold 4 utterances (120000
	// frames) each.
	var entries []string
	for i := 0; i < 10; i++ {
		entries = append(entries, fmt.Sprintf("u%02d.feat[0,29999]", i))
	}
	c, err := Build(BuildOptions{InFiles: [][]string{entries}})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Chunks[0]) != 3 {
		t.Fatalf("chunks=%d, want 3", len(c.Chunks[0]))
	}
	sizes := []int{4, 4, 2}
	for k, want := range sizes {
		if got := c.Chunks[0][k].NumUtterances(); got != want {
			t.Errorf("chunk %d utterances=%d, want %d", k, got, want)
		}
	}
}

func TestCrossStreamAlignment(t *testing.T) {
	var s0, s1 []string
	for i := 0; i < 10; i++ {
		n := 20000 + i*1000
		s0 = append(s0, fmt.Sprintf("u%02d.feat=a0/u%02d.feat[0,%d]", i, i, n-1))
		s1 = append(s1, fmt.Sprintf("u%02d.feat=a1/u%02d.feat[0,%d]", i, i, n-1))
	}
	c, err := Build(BuildOptions{InFiles: [][]string{s0, s1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Chunks[0]) != len(c.Chunks[1]) {
		t.Fatalf("chunk counts %d vs %d", len(c.Chunks[0]), len(c.Chunks[1]))
	}
	for k := range c.Chunks[0] {
		a, b := c.Chunks[0][k], c.Chunks[1][k]
		if a.NumUtterances() != b.NumUtterances() || a.TotalFrames() != b.TotalFrames() {
			t.Fatalf("chunk %d misaligned: %d/%d utts, %d/%d frames",
				k, a.NumUtterances(), b.NumUtterances(), a.TotalFrames(), b.TotalFrames())
		}
		for i := 0; i < a.NumUtterances(); i++ {
			if a.NumFrames(i) != b.NumFrames(i) || a.Utterance(i).Key() != b.Utterance(i).Key() {
				t.Fatalf("chunk %d utterance %d misaligned", k, i)
			}
		}
	}
}

func TestBuildMissingLattices(t *testing.T) {
	arch, err := lattice.OpenKV(lattice.KVOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer arch.Close()
	if err := arch.Put(&lattice.Pair{Key: "a", NumFrames: 4}); err != nil {
		t.Fatal(err)
	}
	if err := arch.Put(&lattice.Pair{Key: "b", NumFrames: 6}); err != nil {
		t.Fatal(err)
	}

	labels := map[string][]mlf.Segment{
		"a": uniformLabels(0, 4),
		"b": uniformLabels(0, 6),
		"c": uniformLabels(0, 10),
	}
	c, err := Build(BuildOptions{
		InFiles:  [][]string{{"a.feat[0,3]", "b.feat[0,5]", "c.feat[0,9]"}},
		Labels:   []map[string][]mlf.Segment{labels},
		UDim:     []int{2},
		Lattices: arch,
	})
	if err != nil {
		t.Fatal(err)
	}
	// c has labels but no lattice
	if c.NumUtterances != 2 || c.TotalFrames != 10 {
		t.Errorf("utts=%d frames=%d", c.NumUtterances, c.TotalFrames)
	}
}

func TestChunkPaging(t *testing.T) {
	dir := t.TempDir()
	writeTestArchive(t, dir, "a.feat", 2, 4, 0)
	writeTestArchive(t, dir, "b.feat", 2, 6, 100)

	c, err := Build(BuildOptions{
		InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	stream := NewStream(htk.NewReader(storage.NewLocal(dir)))
	ch := c.Chunks[0][0]
	ctx := context.Background()

	if ch.InRAM() {
		t.Fatal("fresh chunk reports resident")
	}
	if _, err := ch.UtteranceFrames(0); !errors.Is(err, ErrLogic) {
		t.Errorf("frames while paged out: err=%v", err)
	}

	if err := ch.RequireData(ctx, stream, lattice.NoSource{}, 0); err != nil {
		t.Fatal(err)
	}
	if !ch.InRAM() {
		t.Fatal("chunk not resident after RequireData")
	}
	if err := ch.RequireData(ctx, stream, lattice.NoSource{}, 0); !errors.Is(err, ErrLogic) {
		t.Errorf("double page-in: err=%v", err)
	}

	s, err := ch.UtteranceFrames(1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Cols() != 6 || s.Col(3)[0] != 103 {
		t.Errorf("cols=%d col3=%v", s.Cols(), s.Col(3))
	}

	ch.ReleaseData()
	if ch.InRAM() {
		t.Error("chunk still resident after ReleaseData")
	}
}

func TestChunkPagingRollback(t *testing.T) {
	dir := t.TempDir()
	writeTestArchive(t, dir, "a.feat", 2, 4, 0)
	// b.feat missing: page-in must fail and roll back

	c, err := Build(BuildOptions{
		InFiles: [][]string{{"a.feat[0,3]", "b.feat[0,5]"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	stream := NewStream(htk.NewReader(storage.NewLocal(dir)))
	ch := c.Chunks[0][0]

	if err := ch.RequireData(context.Background(), stream, lattice.NoSource{}, 0); err == nil {
		t.Fatal("expected page-in failure")
	}
	if ch.InRAM() {
		t.Error("chunk left partially resident after failed page-in")
	}
}
