package lattice

import (
	"errors"
	"testing"
)

func openTestArchive(t *testing.T) *KVArchive {
	t.Helper()
	a, err := OpenKV(KVOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testPair(key string, n int) *Pair {
	return &Pair{
		Key:       key,
		NumFrames: n,
		Num: Graph{
			Nodes: []Node{{Frame: 0}, {Frame: n}},
			Edges: []Edge{{From: 0, To: 1, Label: 3, AcScore: -41.5, LmScore: -2.25}},
		},
		Den: Graph{
			Nodes: []Node{{Frame: 0}, {Frame: n}},
			Edges: []Edge{
				{From: 0, To: 1, Label: 3, AcScore: -41.5, LmScore: -2.25},
				{From: 0, To: 1, Label: 7, AcScore: -44.0, LmScore: -1.75},
			},
		},
	}
}

func TestKVArchiveRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	if !a.Empty() {
		t.Error("new archive not empty")
	}

	if err := a.Put(testPair("spk/utt1", 20)); err != nil {
		t.Fatal(err)
	}
	if a.Empty() {
		t.Error("archive still empty after Put")
	}
	if !a.HasLattice("spk/utt1") {
		t.Error("HasLattice=false")
	}
	if a.HasLattice("spk/utt2") {
		t.Error("HasLattice=true for missing key")
	}

	p, err := a.GetLattices("spk/utt1", 20)
	if err != nil {
		t.Fatal(err)
	}
	if p.Key != "spk/utt1" || len(p.Den.Edges) != 2 {
		t.Errorf("pair=%+v", p)
	}
	if p.Den.Edges[1].AcScore != -44.0 {
		t.Errorf("edge score=%v", p.Den.Edges[1].AcScore)
	}
}

func TestKVArchiveFrameCheck(t *testing.T) {
	a := openTestArchive(t)
	if err := a.Put(testPair("u", 20)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.GetLattices("u", 21); err == nil {
		t.Error("expected frame-count mismatch error")
	}
}

func TestKVArchiveNotFound(t *testing.T) {
	a := openTestArchive(t)
	_, err := a.GetLattices("missing", 10)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err=%v, want ErrNotFound", err)
	}
}

func TestNoSource(t *testing.T) {
	var s Source = NoSource{}
	if !s.Empty() || s.HasLattice("x") {
		t.Error("NoSource should be empty")
	}
	if _, err := s.GetLattices("x", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("err=%v", err)
	}
}
