package corpus

import (
	"fmt"
	"log/slog"

	"github.com/haivivi/minibatch/pkg/htk"
	"github.com/haivivi/minibatch/pkg/lattice"
	"github.com/haivivi/minibatch/pkg/mlf"
)

const (
	// chunkFrames is the target chunk size: 15 minutes at 100 frames/s.
	// A chunk is sealed once it exceeds this.
	chunkFrames = 15 * 60 * 100

	// maxUtterancesPerChunk bounds within-chunk utterance indices.
	maxUtterancesPerChunk = 65535

	// minFramesPerUtterance: boundary markers need at least 2 frames.
	minFramesPerUtterance = 2

	// maxFramesPerUtterance bounds within-utterance frame indices.
	maxFramesPerUtterance = 65535
)

// BuildOptions are the inputs to catalog construction.
type BuildOptions struct {
	// InFiles holds the feature script entries: InFiles[s][i] is the
	// archive path of utterance i in stream s. All streams must list the
	// same utterances in the same order. Frame ranges are required.
	InFiles [][]string

	// Labels holds one map per label stream, keyed by utterance key.
	// Empty (or nil) means unsupervised.
	Labels []map[string][]mlf.Segment

	// UDim is the declared class-id cardinality per label stream. A class
	// id at or above the stream's UDim is a fatal configuration error.
	UDim []int

	// Lattices supplies per-utterance lattices; in a supervised corpus,
	// utterances without one are skipped (unsupervised corpora are not
	// checked against it). Use lattice.NoSource{} when not doing sequence
	// training.
	Lattices lattice.Source

	// ChunkFrames overrides the target chunk size in frames.
	// Default 90000 (15 minutes at 100 frames/s).
	ChunkFrames int
}

// Corpus is the built catalog: per-stream chunk sequences plus the label
// store. Immutable after Build except for chunk paging.
type Corpus struct {
	// Chunks[s] is stream s's chunk sequence. All streams have identical
	// chunk and utterance partitioning.
	Chunks [][]*Chunk

	Labels   *Labels
	Lattices lattice.Source

	NumUtterances int
	TotalFrames   int
}

// NumStreams returns the number of feature streams.
func (c *Corpus) NumStreams() int { return len(c.Chunks) }

// Supervised reports whether the corpus carries labels.
func (c *Corpus) Supervised() bool { return c.Labels.Supervised() }

// Build constructs the catalog per the validation and chunking rules:
// stream 0 defines the canonical frame count per utterance, other streams
// must agree; labeled corpora must cover every utterance with matching
// durations; invalid utterances are skipped (more than half invalid is
// fatal); surviving utterances are packed into ~15-minute chunks with
// identical partitioning across streams.
func Build(opts BuildOptions) (*Corpus, error) {
	if len(opts.InFiles) == 0 {
		return nil, configErrorf("no feature streams")
	}
	if len(opts.Labels) != len(opts.UDim) {
		return nil, configErrorf("%d label streams but %d output dimensions", len(opts.Labels), len(opts.UDim))
	}
	lats := opts.Lattices
	if lats == nil {
		lats = lattice.NoSource{}
	}

	numStreams := len(opts.InFiles)
	numUtts := len(opts.InFiles[0])
	supervised := len(opts.Labels) > 0

	// parse all script entries up front
	paths := make([][]htk.Path, numStreams)
	for m := range opts.InFiles {
		if len(opts.InFiles[m]) != numUtts {
			return nil, configErrorf("stream %d lists %d utterances, stream 0 lists %d", m, len(opts.InFiles[m]), numUtts)
		}
		paths[m] = make([]htk.Path, numUtts)
		for i, entry := range opts.InFiles[m] {
			p, err := htk.ParsePath(entry)
			if err != nil {
				return nil, configErrorf("stream %d entry %d: %v", m, i, err)
			}
			paths[m][i] = p
		}
	}

	// stream 0 defines the canonical durations; verify the others
	valid := make([]bool, numUtts)
	duration := make([]int, numUtts)
	for m := range paths {
		for i, p := range paths[m] {
			frames, err := p.NumFrames()
			if err != nil {
				return nil, configErrorf("stream %d entry %d (%s): %v", m, i, p.Logical, err)
			}
			switch {
			case m == 0 && (frames < minFramesPerUtterance || frames > maxFramesPerUtterance):
				slog.Warn("skipping utterance with out-of-range frame count",
					"key", p.Key(), "frames", frames, "min", minFramesPerUtterance, "max", maxFramesPerUtterance)
			case m == 0:
				valid[i] = true
				duration[i] = frames
			case valid[i] && frames != duration[i]:
				slog.Warn("skipping utterance with inconsistent durations across streams",
					"key", p.Key(), "stream", m, "frames", frames, "stream0_frames", duration[i])
				valid[i] = false
				duration[i] = 0
			}
		}
	}

	// check labels and lattices per key
	var noMLF, noLat, noDur int
	if supervised {
		for i := 0; i < numUtts; i++ {
			if !valid[i] {
				continue
			}
			key := paths[0][i].Key()
			for j, labelSet := range opts.Labels {
				segs, ok := labelSet[key]
				if !ok {
					if noMLF < 5 {
						slog.Warn("no labels for utterance", "key", key, "label_stream", j)
					}
					noMLF++
					valid[i] = false
					break
				}
				labFrames := 0
				if len(segs) > 0 {
					last := segs[len(segs)-1]
					labFrames = last.FirstFrame + last.NumFrames
				}
				if labFrames != duration[i] {
					slog.Warn("skipping utterance with label duration mismatch",
						"key", key, "label_frames", labFrames, "feat_frames", duration[i])
					noDur++
					valid[i] = false
					break
				}
			}
			if valid[i] && !lats.Empty() && !lats.HasLattice(key) {
				if noLat < 5 {
					slog.Warn("no lattice for utterance", "key", key)
				}
				noLat++
				valid[i] = false
			}
		}
	}

	invalid := 0
	for _, ok := range valid {
		if !ok {
			invalid++
		}
	}
	if invalid > numUtts/2 {
		return nil, fmt.Errorf("%w: %d of %d unusable", ErrTooManyInvalid, invalid, numUtts)
	}
	if invalid > 0 {
		slog.Warn("skipping invalid utterances",
			"invalid", invalid, "total", numUtts,
			"no_labels", noMLF, "no_lattice", noLat, "duration_mismatch", noDur)
	}

	// flatten labels for valid utterances, in catalog order
	labels := newLabels(len(opts.Labels))
	classIDsBegin := make([]int, numUtts)
	totalFrames := 0
	kept := 0
	for i := 0; i < numUtts; i++ {
		if !valid[i] {
			continue
		}
		classIDsBegin[i] = labels.classLen()
		if supervised {
			key := paths[0][i].Key()
			for j, labelSet := range opts.Labels {
				if err := appendSegments(labels, j, key, labelSet[key], opts.UDim[j]); err != nil {
					return nil, err
				}
				labels.terminate(j)
			}
		}
		totalFrames += duration[i]
		kept++
	}
	if supervised {
		for j := range opts.Labels {
			if got, want := labels.classIDs[j].Len(), totalFrames+kept; got != want {
				return nil, logicErrorf("label stream %d holds %d entries, want %d", j, got, want)
			}
		}
	}

	// pack into chunks, stream 0 defining the partition
	targetFrames := opts.ChunkFrames
	if targetFrames <= 0 {
		targetFrames = chunkFrames
	}
	chunks := make([][]*Chunk, numStreams)
	for m := 0; m < numStreams; m++ {
		chunks[m] = []*Chunk{}
	}
	for i := 0; i < numUtts; i++ {
		if !valid[i] {
			continue
		}
		last := len(chunks[0]) - 1
		if last < 0 || chunks[0][last].totalFrames > targetFrames || chunks[0][last].NumUtterances() >= maxUtterancesPerChunk {
			for m := 0; m < numStreams; m++ {
				chunks[m] = append(chunks[m], &Chunk{})
			}
			last++
		}
		for m := 0; m < numStreams; m++ {
			d := Desc{Path: paths[m][i], ClassIDsBegin: classIDsBegin[i], frames: duration[i]}
			if err := chunks[m][last].append(d); err != nil {
				return nil, err
			}
		}
	}

	c := &Corpus{
		Chunks:        chunks,
		Labels:        labels,
		Lattices:      lats,
		NumUtterances: kept,
		TotalFrames:   totalFrames,
	}
	slog.Info("corpus catalog built",
		"utterances", kept, "frames", totalFrames, "chunks", len(chunks[0]),
		"streams", numStreams, "label_streams", len(opts.Labels))
	if supervised {
		for j := range opts.Labels {
			slog.Info("label stream", "stream", j, "classes", labels.NumClasses(j))
		}
	}
	return c, nil
}

// appendSegments flattens one utterance's segments into label stream j,
// enforcing contiguity and the declared class cardinality.
func appendSegments(labels *Labels, j int, key string, segs []mlf.Segment, udim int) error {
	for i, seg := range segs {
		if (i == 0 && seg.FirstFrame != 0) ||
			(i > 0 && segs[i-1].FirstFrame+segs[i-1].NumFrames != seg.FirstFrame) {
			return configErrorf("labels not in consecutive order for %s", key)
		}
		if seg.ClassID < 0 || seg.ClassID >= udim {
			return configErrorf("class id %d exceeds output dimension %d for %s", seg.ClassID, udim, key)
		}
		labels.append(j, int32(seg.ClassID), int32(seg.PhoneStart), seg.NumFrames)
	}
	return nil
}
