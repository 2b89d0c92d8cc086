package source

import (
	"log/slog"
	"math/rand"
	"sort"

	"github.com/haivivi/minibatch/pkg/corpus"
)

// randomizedChunk is a catalog chunk placed into the randomized processing
// order, annotated with its position in utterance-position space, its span
// on the global timeline, and the window of randomized chunk indices its
// sequences may be swapped within.
type randomizedChunk struct {
	data *corpus.Chunk

	utterancePosBegin int
	globalTS          int

	// randomization window [windowBegin, windowEnd), maintained on
	// stream 0 only; the partitioning is identical on all streams.
	windowBegin int
	windowEnd   int
}

func (c *randomizedChunk) utterancePosEnd() int { return c.utterancePosBegin + c.data.NumUtterances() }
func (c *randomizedChunk) globalTE() int        { return c.globalTS + c.data.TotalFrames() }

// sequenceRef identifies one randomized sequence: a whole utterance in
// utterance mode, a single frame in frame mode.
type sequenceRef struct {
	chunkIndex     int // index into the randomized chunk order
	utteranceIndex int // utterance within that chunk
	frameIndex     int // 0 in utterance mode
	globalTS       int // start frame on the randomized global timeline
	numFrames      int
}

func (s sequenceRef) globalTE() int { return s.globalTS + s.numFrames }

// randomizer holds all per-sweep randomization state and rebuilds it
// lazily when a request crosses into a new sweep.
type randomizer struct {
	verbosity          int
	frameMode          bool
	totalFrames        int
	numUtterances      int
	randomizationRange int // full window in frames, half used per side

	currentSweep int // -1 before the first randomization

	chunks          [][]randomizedChunk // [stream][randomized chunk index]
	sequences       []sequenceRef       // [position]
	positionWindows []int               // [position] -> defining chunk index (stream 0)
	posOfGlobalTS   map[int]int         // globalTS -> position
}

func newRandomizer(verbosity int, frameMode bool, totalFrames, numUtterances, randomizationRange int) *randomizer {
	return &randomizer{
		verbosity:          verbosity,
		frameMode:          frameMode,
		totalFrames:        totalFrames,
		numUtterances:      numUtterances,
		randomizationRange: randomizationRange,
		currentSweep:       -1,
	}
}

// shuffle brings v into a random order by swapping every index with a
// uniformly drawn one, seeded deterministically.
func shuffle(v []int, seed int) {
	rng := rand.New(rand.NewSource(int64(seed)))
	for i := range v {
		j := rng.Intn(len(v))
		if j != i {
			v[i], v[j] = v[j], v[i]
		}
	}
}

// lazyRandomization rebuilds all randomization state for the sweep that
// contains globalTS, if not already current, and returns the sweep index.
//
// Randomization happens on two levels: the chunk order is shuffled
// corpus-wide, then sequences (utterances or frames) are shuffled within
// the rolling chunk window. Both shuffles are seeded by the sweep index,
// so the result is a pure function of (sweep, catalog).
func (r *randomizer) lazyRandomization(globalTS int, corp *corpus.Corpus) (int, error) {
	sweep := globalTS / r.totalFrames
	if sweep == r.currentSweep {
		return sweep, nil
	}
	r.currentSweep = sweep
	if r.verbosity > 0 {
		mode := "utterance"
		if r.frameMode {
			mode = "frame"
		}
		slog.Debug("re-randomizing", "sweep", sweep, "mode", mode)
	}
	sweepTS := sweep * r.totalFrames

	// randomize the chunk order; one permutation shared by all streams
	// keeps their identical partitioning aligned
	numChunks := len(corp.Chunks[0])
	perm := make([]int, numChunks)
	for k := range perm {
		perm[k] = k
	}
	shuffle(perm, sweep)

	// place the permuted chunks onto the global timeline
	r.chunks = make([][]randomizedChunk, corp.NumStreams())
	for m := range corp.Chunks {
		r.chunks[m] = make([]randomizedChunk, numChunks)
		posBegin, ts := 0, sweepTS
		for k, src := range perm {
			c := &r.chunks[m][k]
			c.data = corp.Chunks[m][src]
			c.utterancePosBegin = posBegin
			c.globalTS = ts
			posBegin = c.utterancePosEnd()
			ts = c.globalTE()
		}
		if posBegin != r.numUtterances || ts != sweepTS+r.totalFrames {
			return 0, logicErrorf("stream %d randomized chunks cover %d utterances / end %d, want %d / %d",
				m, posBegin, ts, r.numUtterances, sweepTS+r.totalFrames)
		}
	}

	// compute each chunk's randomization window (stream 0 only), carrying
	// the left neighbor's window forward
	half := r.randomizationRange / 2
	chunks := r.chunks[0]
	for k := range chunks {
		c := &chunks[k]
		if k == 0 {
			c.windowBegin, c.windowEnd = 0, 1
		} else {
			c.windowBegin = chunks[k-1].windowBegin
			c.windowEnd = chunks[k-1].windowEnd
		}
		for c.globalTS-chunks[c.windowBegin].globalTS > half {
			c.windowBegin++
		}
		for c.windowEnd < len(chunks) && chunks[c.windowEnd].globalTE()-c.globalTS < half {
			c.windowEnd++
		}
	}

	// sequence positions: one per frame in frame mode, one per utterance
	// otherwise; each position's window is defined by its chunk
	numSequences := r.numUtterances
	if r.frameMode {
		numSequences = r.totalFrames
	}
	r.positionWindows = make([]int, 0, numSequences)
	r.sequences = make([]sequenceRef, 0, numSequences)
	for k := range chunks {
		data := chunks[k].data
		for i := 0; i < data.NumUtterances(); i++ {
			n := 1
			if r.frameMode {
				n = data.NumFrames(i)
			}
			for m := 0; m < n; m++ {
				r.positionWindows = append(r.positionWindows, k)
				r.sequences = append(r.sequences, sequenceRef{chunkIndex: k, utteranceIndex: i, frameIndex: m})
			}
		}
	}
	if len(r.sequences) != numSequences {
		return 0, logicErrorf("assigned %d sequence positions, want %d", len(r.sequences), numSequences)
	}

	// shuffle sequences, constrained so that both sides of every swap
	// stay within their position's chunk window
	rng := rand.New(rand.NewSource(int64(sweep) + 1))
	for i := range r.sequences {
		w := &chunks[r.positionWindows[i]]
		var posBegin, posEnd int
		if r.frameMode {
			posBegin = chunks[w.windowBegin].globalTS - sweepTS
			posEnd = chunks[w.windowEnd-1].globalTE() - sweepTS
		} else {
			posBegin = chunks[w.windowBegin].utterancePosBegin
			posEnd = chunks[w.windowEnd-1].utterancePosEnd()
		}
		for {
			j := posBegin + rng.Intn(posEnd-posBegin)
			if j == i {
				break
			}
			if !r.inWindow(i, r.sequences[j]) || !r.inWindow(j, r.sequences[i]) {
				continue
			}
			r.sequences[i], r.sequences[j] = r.sequences[j], r.sequences[i]
			break
		}
	}

	// lay the shuffled sequences back onto the global timeline
	ts := sweepTS
	for i := range r.sequences {
		seq := &r.sequences[i]
		seq.globalTS = ts
		if r.frameMode {
			seq.numFrames = 1
		} else {
			seq.numFrames = chunks[seq.chunkIndex].data.NumFrames(seq.utteranceIndex)
		}
		ts = seq.globalTE()
	}
	if ts != sweepTS+r.totalFrames {
		return 0, logicErrorf("randomized timeline ends at %d, want %d", ts, sweepTS+r.totalFrames)
	}

	// verify window containment
	for i := range r.sequences {
		if !r.inWindow(i, r.sequences[i]) {
			return 0, logicErrorf("position %d assigned a sequence outside its chunk window", i)
		}
	}

	r.posOfGlobalTS = make(map[int]int, len(r.sequences))
	for pos := range r.sequences {
		r.posOfGlobalTS[r.sequences[pos].globalTS] = pos
	}
	return sweep, nil
}

// inWindow reports whether seq may occupy position i.
func (r *randomizer) inWindow(i int, seq sequenceRef) bool {
	w := &r.chunks[0][r.positionWindows[i]]
	return seq.chunkIndex >= w.windowBegin && seq.chunkIndex < w.windowEnd
}

// chunkForFramePos finds the randomized chunk covering global frame t.
func (r *randomizer) chunkForFramePos(t int) (int, error) {
	chunks := r.chunks[0]
	k := sort.Search(len(chunks), func(i int) bool { return chunks[i].globalTE() > t })
	if k == len(chunks) || t < chunks[k].globalTS {
		return 0, logicErrorf("frame position %d not covered by randomized chunks", t)
	}
	return k, nil
}

// chunkData returns the underlying chunk at randomized index k of the
// given stream.
func (r *randomizer) chunkData(stream, k int) *corpus.Chunk {
	return r.chunks[stream][k].data
}

func (r *randomizer) numChunks() int { return len(r.chunks[0]) }

func (r *randomizer) windowBegin(k int) int { return r.chunks[0][k].windowBegin }

func (r *randomizer) windowEnd(k int) int { return r.chunks[0][k].windowEnd }
