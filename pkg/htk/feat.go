package htk

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/haivivi/minibatch/pkg/mat"
	"github.com/haivivi/minibatch/pkg/storage"
)

const headerSize = 12

// Base parameter kind codes (low 6 bits of the parmKind field).
var kindNames = map[uint16]string{
	0: "WAVEFORM",
	1: "LPC",
	2: "LPREFC",
	3: "LPCEPSTRA",
	4: "LPDELCEP",
	5: "IREFC",
	6: "MFCC",
	7: "FBANK",
	8: "MELSPEC",
	9: "USER",
	10: "DISCRETE",
	11: "PLP",
}

// Qualifier bits, in the order HTK spells them.
var kindQualifiers = []struct {
	bit  uint16
	name string
}{
	{0x0040, "_E"},
	{0x0080, "_N"},
	{0x0100, "_D"},
	{0x0200, "_A"},
	{0x0400, "_C"},
	{0x0800, "_Z"},
	{0x1000, "_K"},
	{0x2000, "_0"},
}

// KindName renders a parmKind field as the HTK textual form, e.g.
// "MFCC_D_A_0".
func KindName(parmKind uint16) string {
	name, ok := kindNames[parmKind&0x3f]
	if !ok {
		name = fmt.Sprintf("KIND%d", parmKind&0x3f)
	}
	for _, q := range kindQualifiers {
		if parmKind&q.bit != 0 {
			name += q.name
		}
	}
	return name
}

// Info describes a feature archive as probed from its header.
type Info struct {
	Kind         string // parameter kind, e.g. "MFCC_D_A"
	Dim          int    // feature dimension (sampSize / 4)
	SamplePeriod int    // frame period in 100ns units (100000 = 10ms)
}

// header is the raw 12-byte archive header.
type header struct {
	NSamples     int32
	SamplePeriod int32
	SampSize     int16
	ParmKind     uint16
}

// Reader reads feature frames from archives through a storage backend.
// Probed headers are cached per physical archive, so paging a chunk whose
// utterances share an archive touches the header once.
//
// Safe for concurrent use.
type Reader struct {
	archive storage.Archive

	mu      sync.Mutex
	headers map[string]header
}

// NewReader creates a Reader over the given archive backend.
func NewReader(archive storage.Archive) *Reader {
	return &Reader{archive: archive, headers: make(map[string]header)}
}

// header probes (or returns the cached) archive header for path.
func (r *Reader) header(ctx context.Context, physical string) (header, error) {
	r.mu.Lock()
	h, ok := r.headers[physical]
	r.mu.Unlock()
	if ok {
		return h, nil
	}

	rc, err := r.archive.OpenRange(ctx, physical, 0, headerSize)
	if err != nil {
		return header{}, fmt.Errorf("htk: open %s: %w", physical, err)
	}
	defer rc.Close()
	if err := binary.Read(rc, binary.BigEndian, &h); err != nil {
		return header{}, fmt.Errorf("htk: read header of %s: %w", physical, err)
	}
	if h.SampSize <= 0 || h.SampSize%4 != 0 {
		return header{}, fmt.Errorf("htk: %s: sample size %d not a float32 vector", physical, h.SampSize)
	}
	if h.NSamples < 0 {
		return header{}, fmt.Errorf("htk: %s: negative sample count %d", physical, h.NSamples)
	}

	r.mu.Lock()
	r.headers[physical] = h
	r.mu.Unlock()
	return h, nil
}

// GetInfo probes the archive named by p and returns its feature kind,
// dimension, and sample period.
func (r *Reader) GetInfo(ctx context.Context, p Path) (Info, error) {
	h, err := r.header(ctx, p.Physical)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Kind:         KindName(h.ParmKind),
		Dim:          int(h.SampSize) / 4,
		SamplePeriod: int(h.SamplePeriod),
	}, nil
}

// Read fills dst with the frame range of p, one frame per column. The
// archive's kind, dimension, and sample period must match info (from an
// earlier GetInfo on any archive of the same stream), and dst must have
// info.Dim rows and p.NumFrames() columns.
func (r *Reader) Read(ctx context.Context, p Path, info Info, dst mat.Stripe) error {
	n, err := p.NumFrames()
	if err != nil {
		return err
	}
	h, err := r.header(ctx, p.Physical)
	if err != nil {
		return err
	}
	got := Info{Kind: KindName(h.ParmKind), Dim: int(h.SampSize) / 4, SamplePeriod: int(h.SamplePeriod)}
	if got != info {
		return fmt.Errorf("htk: %s: archive is %d-dim %s @%d, stream is %d-dim %s @%d",
			p.Physical, got.Dim, got.Kind, got.SamplePeriod, info.Dim, info.Kind, info.SamplePeriod)
	}
	if p.Last >= int(h.NSamples) {
		return fmt.Errorf("htk: %s: frame range [%d,%d] exceeds %d samples", p.Physical, p.First, p.Last, h.NSamples)
	}
	if dst.Rows() != info.Dim || dst.Cols() != n {
		return fmt.Errorf("htk: destination is %dx%d, want %dx%d", dst.Rows(), dst.Cols(), info.Dim, n)
	}

	sampSize := int64(h.SampSize)
	off := headerSize + int64(p.First)*sampSize
	rc, err := r.archive.OpenRange(ctx, p.Physical, off, int64(n)*sampSize)
	if err != nil {
		return fmt.Errorf("htk: open %s: %w", p.Physical, err)
	}
	defer rc.Close()

	buf := make([]byte, sampSize)
	for j := 0; j < n; j++ {
		if _, err := io.ReadFull(rc, buf); err != nil {
			return fmt.Errorf("htk: read frame %d of %s: %w", p.First+j, p.Physical, err)
		}
		col := dst.Col(j)
		for i := range col {
			col[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[i*4:]))
		}
	}
	return nil
}
