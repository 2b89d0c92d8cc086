// Package mat provides the dense float32 matrix primitives used by the
// minibatch engine: a column-major frame matrix, cheap column stripes over
// it, and neighbor-frame context augmentation.
//
// A Matrix stores feature frames as columns, so one utterance occupies a
// contiguous run of columns and a chunk of utterances is a single
// allocation. An empty matrix doubles as the "paged out" state of a chunk;
// Resize re-materializes it.
package mat
