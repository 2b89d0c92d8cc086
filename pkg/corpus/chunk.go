package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haivivi/minibatch/pkg/htk"
	"github.com/haivivi/minibatch/pkg/lattice"
	"github.com/haivivi/minibatch/pkg/mat"
)

// Stream is the per-feature-stream read state shared by all chunks of that
// stream: the archive reader plus the stream's feature info, which is
// probed lazily on the first page-in and verified on every read after.
type Stream struct {
	Reader *htk.Reader

	Info      htk.Info
	infoKnown bool
}

// NewStream creates the read state for one feature stream.
func NewStream(reader *htk.Reader) *Stream {
	return &Stream{Reader: reader}
}

// Chunk is a contiguous group of utterances paged in and out together.
// Roughly 15 minutes of audio per chunk keeps page-ins chunk-sequential on
// disk while the randomizer works on whole chunks.
//
// The frame matrix is a cache: empty means paged out, otherwise it holds
// exactly featDim x totalFrames values. There is no partial state.
type Chunk struct {
	utterances  []Desc
	firstFrames []int
	totalFrames int

	frames   mat.Matrix
	lattices []*lattice.Pair
}

// NumUtterances returns the number of utterances in the chunk.
func (c *Chunk) NumUtterances() int { return len(c.utterances) }

// TotalFrames returns the chunk's total frame count.
func (c *Chunk) TotalFrames() int { return c.totalFrames }

// NumFrames returns the frame count of utterance i.
func (c *Chunk) NumFrames(i int) int { return c.utterances[i].NumFrames() }

// ClassIDsBegin returns utterance i's offset into the flat label vectors.
func (c *Chunk) ClassIDsBegin(i int) int { return c.utterances[i].ClassIDsBegin }

// Utterance returns the descriptor of utterance i.
func (c *Chunk) Utterance(i int) Desc { return c.utterances[i] }

// append adds an utterance during catalog construction.
func (c *Chunk) append(d Desc) error {
	if c.InRAM() {
		return logicErrorf("chunk: frames already paged into RAM, too late to add data")
	}
	c.firstFrames = append(c.firstFrames, c.totalFrames)
	c.totalFrames += d.NumFrames()
	c.utterances = append(c.utterances, d)
	return nil
}

// InRAM reports whether the chunk's frames are resident.
func (c *Chunk) InRAM() bool { return !c.frames.Empty() }

// UtteranceFrames returns the frame columns of utterance i as a stripe
// over the chunk matrix. The chunk must be resident.
func (c *Chunk) UtteranceFrames(i int) (mat.Stripe, error) {
	if !c.InRAM() {
		return mat.Stripe{}, logicErrorf("chunk: utterance frames requested while paged out")
	}
	return c.frames.Stripe(c.firstFrames[i], c.NumFrames(i)), nil
}

// UtteranceLattice returns the lattice pair of utterance i. The chunk must
// be resident and the catalog built with a lattice source.
func (c *Chunk) UtteranceLattice(i int) (*lattice.Pair, error) {
	if !c.InRAM() {
		return nil, logicErrorf("chunk: utterance lattice requested while paged out")
	}
	if i >= len(c.lattices) {
		return nil, logicErrorf("chunk: no lattices paged for utterance %d", i)
	}
	return c.lattices[i], nil
}

// RequireData pages the chunk in: reads every utterance's frames from the
// stream's archive, and the lattices when a source is present. The first
// page-in of a stream probes and records the stream's feature info.
//
// On any failure the chunk is rolled back to the paged-out state.
func (c *Chunk) RequireData(ctx context.Context, stream *Stream, lats lattice.Source, verbosity int) error {
	if c.NumUtterances() == 0 {
		return logicErrorf("chunk: cannot page in virgin chunk")
	}
	if c.InRAM() {
		return logicErrorf("chunk: page-in requested while already resident")
	}

	err := c.readData(ctx, stream, lats, verbosity)
	if err != nil {
		c.ReleaseData()
		return err
	}
	return nil
}

func (c *Chunk) readData(ctx context.Context, stream *Stream, lats lattice.Source, verbosity int) error {
	if !stream.infoKnown {
		info, err := stream.Reader.GetInfo(ctx, c.utterances[0].Path)
		if err != nil {
			return fmt.Errorf("corpus: probe feature info: %w", err)
		}
		stream.Info = info
		stream.infoKnown = true
		slog.Info("determined feature stream info",
			"kind", info.Kind, "dim", info.Dim, "frame_shift_ms", float64(info.SamplePeriod)/1e4)
	}

	c.frames.Resize(stream.Info.Dim, c.totalFrames)
	if !lats.Empty() {
		c.lattices = make([]*lattice.Pair, len(c.utterances))
	}
	for i := range c.utterances {
		stripe, err := c.UtteranceFrames(i)
		if err != nil {
			return err
		}
		if err := stream.Reader.Read(ctx, c.utterances[i].Path, stream.Info, stripe); err != nil {
			return fmt.Errorf("corpus: page in utterance %s: %w", c.utterances[i].Key(), err)
		}
		if !lats.Empty() {
			pair, err := lats.GetLattices(c.utterances[i].Key(), c.NumFrames(i))
			if err != nil {
				return fmt.Errorf("corpus: page in lattice %s: %w", c.utterances[i].Key(), err)
			}
			c.lattices[i] = pair
		}
	}
	if verbosity > 0 {
		slog.Debug("chunk paged in", "utterances", len(c.utterances), "frames", c.totalFrames)
	}
	return nil
}

// ReleaseData pages the chunk out, dropping frames and lattices.
func (c *Chunk) ReleaseData() {
	c.frames.Resize(0, 0)
	c.lattices = nil
}
