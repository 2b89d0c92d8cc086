package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haivivi/minibatch/pkg/corpus"
	"github.com/haivivi/minibatch/pkg/lattice"
	"github.com/haivivi/minibatch/pkg/mat"
)

// pagingAttempts bounds retries of chunk page-ins over flaky storage.
const pagingAttempts = 5

// Options configures a Source.
type Options struct {
	// Corpus is the built catalog. Required.
	Corpus *corpus.Corpus

	// Streams holds one per-stream read state, parallel to the corpus's
	// feature streams. Required.
	Streams []*corpus.Stream

	// VDim is the output feature dimension per stream, after context
	// augmentation. A stream whose VDim equals its raw dimension gets no
	// augmentation.
	VDim []int

	// LeftContext and RightContext are per-stream context widths. Zero
	// means "derive the extent from VDim and the raw dimension". Nil
	// slices mean all zeros.
	LeftContext  []int
	RightContext []int

	// RandomizationRange is the full randomization window in frames
	// (e.g. 48 hours = 48*3600*100). Sequences are shuffled within half
	// this range on either side of their chunk.
	RandomizationRange int

	// WordTranscripts supplies word-level references by utterance key
	// for lattice training. Optional.
	WordTranscripts map[string][]lattice.Word

	// FrameMode returns single randomized frames instead of whole
	// utterances.
	FrameMode bool

	Verbosity int
}

// Source produces randomized minibatches from a corpus catalog.
//
// Not safe for concurrent use: all paging and randomization state is
// mutated inside GetBatch calls, which callers must serialize.
type Source struct {
	corp    *corpus.Corpus
	streams []*corpus.Stream

	vdim         []int
	leftContext  []int
	rightContext []int

	wordTranscripts map[string][]lattice.Word
	frameMode       bool
	verbosity       int

	rand        *randomizer
	chunksInRAM int
}

// New creates a Source over a built corpus.
func New(opts Options) (*Source, error) {
	corp := opts.Corpus
	if corp == nil || corp.TotalFrames == 0 {
		return nil, fmt.Errorf("%w: empty corpus", corpus.ErrConfig)
	}
	s := corp.NumStreams()
	if len(opts.Streams) != s {
		return nil, fmt.Errorf("%w: %d stream readers for %d streams", corpus.ErrConfig, len(opts.Streams), s)
	}
	if len(opts.VDim) != s {
		return nil, fmt.Errorf("%w: %d output dimensions for %d streams", corpus.ErrConfig, len(opts.VDim), s)
	}
	left, right := opts.LeftContext, opts.RightContext
	if left == nil {
		left = make([]int, s)
	}
	if right == nil {
		right = make([]int, s)
	}
	if len(left) != s || len(right) != s {
		return nil, fmt.Errorf("%w: context widths must cover all %d streams", corpus.ErrConfig, s)
	}
	if opts.RandomizationRange <= 0 {
		return nil, fmt.Errorf("%w: randomization range must be positive", corpus.ErrConfig)
	}

	return &Source{
		corp:            corp,
		streams:         opts.Streams,
		vdim:            opts.VDim,
		leftContext:     left,
		rightContext:    right,
		wordTranscripts: opts.WordTranscripts,
		frameMode:       opts.FrameMode,
		verbosity:       opts.Verbosity,
		rand: newRandomizer(opts.Verbosity, opts.FrameMode,
			corp.TotalFrames, corp.NumUtterances, opts.RandomizationRange),
	}, nil
}

// TotalFrames returns the corpus size in frames; one sweep covers exactly
// this many global time steps.
func (s *Source) TotalFrames() int { return s.corp.TotalFrames }

// SupportsBatchSubsetting reports that GetBatch honors data-parallel
// subsetting.
func (s *Source) SupportsBatchSubsetting() bool { return true }

// SetVerbosity adjusts diagnostic logging.
func (s *Source) SetVerbosity(v int) {
	s.verbosity = v
	s.rand.verbosity = v
}

// UnitCounts returns per-class frame counts of label stream j, for prior
// computation.
func (s *Source) UnitCounts(j int) []int { return s.corp.Labels.Counts(j) }

// ChunksInRAM returns the number of chunks currently resident across all
// streams, for diagnostics.
func (s *Source) ChunksInRAM() int { return s.chunksInRAM }

// FirstValidGlobalTS returns the first global time at or after globalTS
// that GetBatch accepts. Frame mode accepts any time; utterance mode snaps
// forward to the next utterance boundary (or the sweep end when globalTS
// falls inside the last utterance).
func (s *Source) FirstValidGlobalTS(globalTS int) (int, error) {
	if _, err := s.rand.lazyRandomization(globalTS, s.corp); err != nil {
		return 0, err
	}
	if s.frameMode {
		return globalTS, nil
	}
	for pos := range s.rand.sequences {
		if s.rand.sequences[pos].globalTS >= globalTS {
			return s.rand.sequences[pos].globalTS, nil
		}
	}
	return s.rand.sequences[len(s.rand.sequences)-1].globalTE(), nil
}

// GetBatchAll is GetBatch without data-parallel subsetting.
func (s *Source) GetBatchAll(ctx context.Context, globalTS, framesRequested int) (*Batch, error) {
	return s.GetBatch(ctx, globalTS, framesRequested, 0, 1)
}

// GetBatch assembles the minibatch starting at globalTS.
//
// In utterance mode the batch holds whole utterances: at least one, then
// as many more as fit under framesRequested. In frame mode it holds
// exactly framesRequested randomized frames (less at the sweep end).
// With numSubsets > 1 only sequences whose chunk index is congruent to
// subsetNum are returned, but FramesAdvanced still counts all of them, so
// every worker advances globalTS identically.
//
// Calls must use non-decreasing globalTS within a sweep for paging
// locality; crossing a sweep boundary rebuilds all randomization state.
func (s *Source) GetBatch(ctx context.Context, globalTS, framesRequested, subsetNum, numSubsets int) (*Batch, error) {
	if numSubsets <= 0 || subsetNum < 0 || subsetNum >= numSubsets {
		return nil, fmt.Errorf("%w: subset %d of %d", corpus.ErrConfig, subsetNum, numSubsets)
	}
	sweep, err := s.rand.lazyRandomization(globalTS, s.corp)
	if err != nil {
		return nil, err
	}
	if s.frameMode {
		return s.getBatchFrame(ctx, sweep, globalTS, framesRequested, subsetNum, numSubsets)
	}
	return s.getBatchUtterance(ctx, sweep, globalTS, framesRequested, subsetNum, numSubsets)
}

// extents resolves stream i's augmentation extents given its raw feature
// dimension.
func (s *Source) extents(i, rawDim int) (left, right int, err error) {
	if s.leftContext[i] == 0 && s.rightContext[i] == 0 {
		e, err := mat.AugmentationExtent(rawDim, s.vdim[i])
		if err != nil {
			return 0, 0, err
		}
		return e, e, nil
	}
	left, right = s.leftContext[i], s.rightContext[i]
	if (left+right+1)*rawDim != s.vdim[i] {
		return 0, 0, fmt.Errorf("%w: stream %d context (%d,%d) over dim %d does not produce vdim %d",
			corpus.ErrConfig, i, left, right, rawDim, s.vdim[i])
	}
	return left, right, nil
}

// releaseChunk pages randomized chunk k out of every stream.
func (s *Source) releaseChunk(k int) error {
	numStreams := s.corp.NumStreams()
	released := 0
	for m := 0; m < numStreams; m++ {
		if data := s.rand.chunkData(m, k); data.InRAM() {
			data.ReleaseData()
			released++
		}
	}
	switch {
	case released == 0:
	case released == numStreams:
		s.chunksInRAM--
		if s.verbosity > 1 {
			slog.Debug("paged out chunk", "chunk", k, "in_ram", s.chunksInRAM)
		}
	default:
		return logicErrorf("released chunk %d from %d of %d streams", k, released, numStreams)
	}
	return nil
}

// requireChunk pages randomized chunk k into every stream, with bounded
// retries per stream. Reports whether anything was actually read. A chunk
// resident on some streams but not others is a bug.
func (s *Source) requireChunk(ctx context.Context, k, windowBegin, windowEnd int) (bool, error) {
	if k < windowBegin || k >= windowEnd {
		return false, logicErrorf("chunk %d requested outside in-memory window [%d,%d)", k, windowBegin, windowEnd)
	}
	numStreams := s.corp.NumStreams()
	inRAM := 0
	for m := 0; m < numStreams; m++ {
		if s.rand.chunkData(m, k).InRAM() {
			inRAM++
		}
	}
	switch inRAM {
	case numStreams:
		return false, nil
	case 0:
	default:
		return false, logicErrorf("chunk %d resident on %d of %d streams", k, inRAM, numStreams)
	}

	for m := 0; m < numStreams; m++ {
		data := s.rand.chunkData(m, k)
		err := attempt(pagingAttempts, func() error {
			return data.RequireData(ctx, s.streams[m], s.corp.Lattices, s.verbosity)
		})
		if err != nil {
			// roll residency back before propagating so no stream is
			// left holding a half-paged chunk
			for p := 0; p < m; p++ {
				s.rand.chunkData(p, k).ReleaseData()
			}
			return false, fmt.Errorf("source: page in chunk %d stream %d: %w", k, m, err)
		}
	}
	s.chunksInRAM++
	if s.verbosity > 1 {
		slog.Debug("paged in chunk", "chunk", k, "in_ram", s.chunksInRAM)
	}
	return true, nil
}

// getBatchUtterance assembles a whole-utterance minibatch.
func (s *Source) getBatchUtterance(ctx context.Context, sweep, globalTS, framesRequested, subsetNum, numSubsets int) (*Batch, error) {
	pos, ok := s.rand.posOfGlobalTS[globalTS]
	if !ok {
		return nil, fmt.Errorf("%w: globalTS %d", ErrNotOnBoundary, globalTS)
	}
	spos := pos
	seqs := s.rand.sequences

	// greedy pack: always the first utterance, then more while they fit
	mbFrames := seqs[spos].numFrames
	epos := spos + 1
	for ; epos < len(seqs) && mbFrames+seqs[epos].numFrames < framesRequested; epos++ {
		mbFrames += seqs[epos].numFrames
	}

	// page out everything outside the covered window, page in the
	// subset's chunks inside it
	windowBegin := s.rand.windowBegin(s.rand.positionWindows[spos])
	windowEnd := s.rand.windowEnd(s.rand.positionWindows[epos-1])
	readFromDisk := false
	for k := 0; k < windowBegin; k++ {
		if err := s.releaseChunk(k); err != nil {
			return nil, err
		}
	}
	for k := windowEnd; k < s.rand.numChunks(); k++ {
		if err := s.releaseChunk(k); err != nil {
			return nil, err
		}
	}
	for p := spos; p < epos; p++ {
		if seqs[p].chunkIndex%numSubsets != subsetNum {
			continue
		}
		read, err := s.requireChunk(ctx, seqs[p].chunkIndex, windowBegin, windowEnd)
		if err != nil {
			return nil, err
		}
		readFromDisk = readFromDisk || read
	}

	// actual frames returned for this subset
	tspos := 0
	for p := spos; p < epos; p++ {
		if seqs[p].chunkIndex%numSubsets == subsetNum {
			tspos += seqs[p].numFrames
		}
	}

	batch := s.newBatch(tspos)
	batch.FramesAdvanced = mbFrames
	batch.ReadFromDisk = readFromDisk
	if s.verbosity > 0 {
		slog.Debug("assembling utterance batch",
			"sweep", sweep, "positions", epos-spos, "frames", tspos,
			"logical_frames", mbFrames, "requested", framesRequested)
	}

	filled := 0
	for p := spos; p < epos; p++ {
		seq := seqs[p]
		if seq.chunkIndex%numSubsets != subsetNum {
			continue
		}
		n := seq.numFrames
		for i := 0; i < s.corp.NumStreams(); i++ {
			data := s.rand.chunkData(i, seq.chunkIndex)
			frames, err := data.UtteranceFrames(seq.utteranceIndex)
			if err != nil {
				return nil, err
			}
			left, right, err := s.extents(i, frames.Rows())
			if err != nil {
				return nil, err
			}
			for t := 0; t < n; t++ {
				mat.AugmentNeighbors(frames, nil, seq.frameIndex+t, left, right, batch.Feat[i], filled+t)
			}
			batch.SentEndMarks[i] = append(batch.SentEndMarks[i], filled+n)
		}
		if err := s.copyLabels(batch, seqs[p], filled, n); err != nil {
			return nil, err
		}
		if err := s.attachLattice(batch, seq); err != nil {
			return nil, err
		}
		filled += n
	}
	if filled != tspos {
		return nil, logicErrorf("assembled %d frames, allocated %d", filled, tspos)
	}
	return batch, nil
}

// getBatchFrame assembles a frame-randomized minibatch.
func (s *Source) getBatchFrame(ctx context.Context, sweep, globalTS, framesRequested, subsetNum, numSubsets int) (*Batch, error) {
	sweepTS := sweep * s.corp.TotalFrames
	sweepTE := sweepTS + s.corp.TotalFrames
	globalTE := min(globalTS+framesRequested, sweepTE)
	mbFrames := globalTE - globalTS
	if mbFrames <= 0 {
		return nil, logicErrorf("empty frame range [%d,%d)", globalTS, globalTE)
	}

	firstChunk, err := s.rand.chunkForFramePos(globalTS)
	if err != nil {
		return nil, err
	}
	lastChunk, err := s.rand.chunkForFramePos(globalTE - 1)
	if err != nil {
		return nil, err
	}
	if lastChunk > firstChunk+1 {
		// clamping to the sweep end above keeps the batch inside one
		// sweep, but a request longer than a chunk can still span more
		// than two chunks; this is only logged
		slog.Debug("frame batch spans more than two chunks", "first", firstChunk, "last", lastChunk)
	}
	windowBegin := s.rand.windowBegin(firstChunk)
	windowEnd := s.rand.windowEnd(lastChunk)
	if s.verbosity > 0 {
		slog.Debug("assembling frame batch",
			"sweep", sweep, "global_ts", globalTS, "frames", mbFrames,
			"requested", framesRequested, "window_begin", windowBegin, "window_end", windowEnd)
	}

	readFromDisk := false
	for k := 0; k < windowBegin; k++ {
		if err := s.releaseChunk(k); err != nil {
			return nil, err
		}
	}
	for k := windowBegin; k < windowEnd; k++ {
		if k%numSubsets != subsetNum {
			continue
		}
		read, err := s.requireChunk(ctx, k, windowBegin, windowEnd)
		if err != nil {
			return nil, err
		}
		readFromDisk = readFromDisk || read
	}
	for k := windowEnd; k < s.rand.numChunks(); k++ {
		if err := s.releaseChunk(k); err != nil {
			return nil, err
		}
	}

	// first pass: how many of the logical frames belong to this subset
	subsetFrames := 0
	for j := 0; j < mbFrames; j++ {
		framePos := (globalTS + j) % s.corp.TotalFrames
		if s.rand.sequences[framePos].chunkIndex%numSubsets == subsetNum {
			subsetFrames++
		}
	}

	batch := s.newBatch(subsetFrames)
	batch.FramesAdvanced = mbFrames
	batch.ReadFromDisk = readFromDisk

	// second pass: copy the subset's frames and labels
	filled := 0
	for j := 0; j < mbFrames; j++ {
		framePos := (globalTS + j) % s.corp.TotalFrames
		seq := s.rand.sequences[framePos]
		if seq.chunkIndex%numSubsets != subsetNum {
			continue
		}
		if _, err := s.requireChunk(ctx, seq.chunkIndex, windowBegin, windowEnd); err != nil {
			return nil, err
		}
		for i := 0; i < s.corp.NumStreams(); i++ {
			data := s.rand.chunkData(i, seq.chunkIndex)
			frames, err := data.UtteranceFrames(seq.utteranceIndex)
			if err != nil {
				return nil, err
			}
			left, right, err := s.extents(i, frames.Rows())
			if err != nil {
				return nil, err
			}
			mat.AugmentNeighbors(frames, nil, seq.frameIndex, left, right, batch.Feat[i], filled)
		}
		if err := s.copyLabels(batch, seq, filled, 1); err != nil {
			return nil, err
		}
		filled++
	}
	if filled != subsetFrames {
		return nil, logicErrorf("assembled %d frames, allocated %d", filled, subsetFrames)
	}
	return batch, nil
}

// newBatch allocates output buffers for t returned frames.
func (s *Source) newBatch(t int) *Batch {
	b := &Batch{
		Feat:         make([]*mat.Matrix, s.corp.NumStreams()),
		SentEndMarks: make([][]int, s.corp.NumStreams()),
	}
	for i := range b.Feat {
		b.Feat[i] = mat.New(s.vdim[i], t)
	}
	if s.corp.Supervised() {
		b.UIDs = make([][]int32, s.corp.Labels.NumStreams())
		b.PhoneBoundaries = make([][]int32, s.corp.Labels.NumStreams())
		for j := range b.UIDs {
			b.UIDs[j] = make([]int32, t)
			b.PhoneBoundaries[j] = make([]int32, t)
		}
	}
	return b
}

// copyLabels fills n frames of label output starting at batch column
// dstCol, reading the sequence's labels from its utterance's class-id
// window.
func (s *Source) copyLabels(b *Batch, seq sequenceRef, dstCol, n int) error {
	if !s.corp.Supervised() {
		return nil
	}
	data := s.rand.chunkData(0, seq.chunkIndex)
	begin := data.ClassIDsBegin(seq.utteranceIndex)
	uttFrames := data.NumFrames(seq.utteranceIndex)
	for j := 0; j < s.corp.Labels.NumStreams(); j++ {
		ids, err := s.corp.Labels.ClassIDs(j, begin, uttFrames)
		if err != nil {
			return err
		}
		bounds, err := s.corp.Labels.PhoneBoundaries(j, begin, uttFrames)
		if err != nil {
			return err
		}
		for t := 0; t < n; t++ {
			b.UIDs[j][dstCol+t] = ids.At(seq.frameIndex + t)
			b.PhoneBoundaries[j][dstCol+t] = bounds.At(seq.frameIndex + t)
		}
	}
	return nil
}

// attachLattice appends the utterance's lattice pair and word transcript
// when a lattice source is present. Utterance mode only.
func (s *Source) attachLattice(b *Batch, seq sequenceRef) error {
	if s.corp.Lattices.Empty() {
		return nil
	}
	data := s.rand.chunkData(0, seq.chunkIndex)
	pair, err := data.UtteranceLattice(seq.utteranceIndex)
	if err != nil {
		return err
	}
	b.Lattices = append(b.Lattices, pair)
	if len(s.wordTranscripts) > 0 {
		words, ok := s.wordTranscripts[pair.Key]
		if !ok {
			return logicErrorf("no word transcript for %s", pair.Key)
		}
		b.Transcripts = append(b.Transcripts, words)
	}
	return nil
}
