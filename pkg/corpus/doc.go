// Package corpus builds and holds the utterance catalog: utterances
// described per feature stream, packed into paging-sized chunks, with the
// per-frame label streams flattened into class-id vectors.
//
// The catalog is immutable once built. Chunk feature matrices are the only
// mutable state; they are paged in and out by the minibatch engine many
// times during training and are guarded by its single-threaded call
// discipline, not by locks.
package corpus
