package source

import (
	"github.com/haivivi/minibatch/pkg/lattice"
	"github.com/haivivi/minibatch/pkg/mat"
)

// Batch is the result of one GetBatch call.
//
// The feature matrices are owned by the batch (copied out of the chunk
// cache during assembly), but label views and lattice pairs reference
// catalog state; consume a batch before the next GetBatch call.
type Batch struct {
	// Feat[s] is stream s's features, VDim[s] rows by T columns, where T
	// is the number of frames returned for this subset.
	Feat []*mat.Matrix

	// UIDs[j] holds label stream j's class id per returned frame.
	// Empty when the corpus is unsupervised.
	UIDs [][]int32

	// PhoneBoundaries[j] holds the phone-start id per returned frame
	// (0 between phone starts). Empty when unsupervised.
	PhoneBoundaries [][]int32

	// SentEndMarks[s] holds, per stream, the end column (exclusive) of
	// each utterance in the batch. Utterance mode only.
	SentEndMarks [][]int

	// Lattices holds one pair per returned utterance when a lattice
	// source is attached. Utterance mode only.
	Lattices []*lattice.Pair

	// Transcripts holds the word-level reference per returned utterance,
	// parallel to Lattices, when word transcripts were provided.
	Transcripts [][]lattice.Word

	// FramesAdvanced is the logical minibatch size: how far to advance
	// globalTS for the next call. It counts frames before subset
	// filtering, so all data-parallel workers advance identically.
	FramesAdvanced int

	// ReadFromDisk reports whether this call paged any chunk in.
	ReadFromDisk bool
}

// NumFrames returns the number of frames actually present in the batch
// (after subset filtering).
func (b *Batch) NumFrames() int {
	if len(b.Feat) == 0 {
		return 0
	}
	return b.Feat[0].Cols()
}
