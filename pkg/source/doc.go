// Package source implements the randomized minibatch source: a two-level
// randomization over chunks and sequences, on-demand chunk paging aligned
// across feature streams, and minibatch assembly in frame or utterance
// mode.
//
// Randomization is regenerated lazily per sweep (one full pass over the
// corpus) and is deterministic in the sweep index, so a training run can
// be reproduced exactly. Within a sweep, every sequence position draws its
// data from a bounded window of chunks around it; walking positions in
// order therefore pages a rolling window of chunks through RAM instead of
// the whole corpus.
//
// The engine is single-threaded cooperative: all state mutation happens
// inside a GetBatch call. Callers wanting prefetch wrap it in a producer
// goroutine and synchronize outside.
package source
