package htk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/haivivi/minibatch/pkg/mat"
	"github.com/haivivi/minibatch/pkg/storage"
)

// writeArchive writes a dim x n archive named name under dir whose frame j
// holds the value base+j in every row.
func writeArchive(t *testing.T, dir, name string, dim, n int, base float32) {
	t.Helper()
	frames := mat.New(dim, n)
	for j := 0; j < n; j++ {
		for i := 0; i < dim; i++ {
			frames.Set(i, j, base+float32(j))
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := Write(f, "USER", 100000, frames); err != nil {
		t.Fatal(err)
	}
}

func TestReaderGetInfo(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.feat", 3, 20, 0)

	r := NewReader(storage.NewLocal(dir))
	p, _ := ParsePath("a.feat[0,19]")
	info, err := r.GetInfo(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Dim != 3 || info.Kind != "USER" || info.SamplePeriod != 100000 {
		t.Errorf("info=%+v", info)
	}
}

func TestReaderRead(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.feat", 2, 50, 100)

	r := NewReader(storage.NewLocal(dir))
	ctx := context.Background()
	p, _ := ParsePath("a.feat[10,14]")
	info, err := r.GetInfo(ctx, p)
	if err != nil {
		t.Fatal(err)
	}

	dst := mat.New(2, 5)
	if err := r.Read(ctx, p, info, dst.Stripe(0, 5)); err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 5; j++ {
		want := float32(100 + 10 + j)
		if dst.At(0, j) != want || dst.At(1, j) != want {
			t.Errorf("col %d = (%v,%v), want %v", j, dst.At(0, j), dst.At(1, j), want)
		}
	}
}

func TestReaderReadChecks(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.feat", 2, 10, 0)

	r := NewReader(storage.NewLocal(dir))
	ctx := context.Background()
	p, _ := ParsePath("a.feat[0,9]")
	info, err := r.GetInfo(ctx, p)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("range beyond archive", func(t *testing.T) {
		bad, _ := ParsePath("a.feat[5,14]")
		dst := mat.New(2, 10)
		if err := r.Read(ctx, bad, info, dst.Stripe(0, 10)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("info mismatch", func(t *testing.T) {
		other := info
		other.Dim = 7
		dst := mat.New(7, 10)
		if err := r.Read(ctx, p, other, dst.Stripe(0, 10)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("wrong destination shape", func(t *testing.T) {
		dst := mat.New(2, 3)
		if err := r.Read(ctx, p, info, dst.Stripe(0, 3)); err == nil {
			t.Error("expected error")
		}
	})
}

func TestReaderHeaderCache(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "a.feat", 2, 10, 0)

	counting := &countingArchive{Archive: storage.NewLocal(dir)}
	r := NewReader(counting)
	ctx := context.Background()
	p, _ := ParsePath("a.feat[0,9]")
	if _, err := r.GetInfo(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetInfo(ctx, p); err != nil {
		t.Fatal(err)
	}
	if counting.opens != 1 {
		t.Errorf("opens=%d, want 1 (header cached)", counting.opens)
	}
}

type countingArchive struct {
	storage.Archive
	opens int
}

func (c *countingArchive) OpenRange(ctx context.Context, path string, off, n int64) (io.ReadCloser, error) {
	c.opens++
	return c.Archive.OpenRange(ctx, path, off, n)
}
