package source

import "context"

// BatchSource is the capability set a training loop consumes. *Source
// implements it; alternative sources (e.g. a prefetching wrapper or a
// non-randomizing sequential reader) can stand in behind it.
type BatchSource interface {
	GetBatch(ctx context.Context, globalTS, framesRequested, subsetNum, numSubsets int) (*Batch, error)
	GetBatchAll(ctx context.Context, globalTS, framesRequested int) (*Batch, error)
	TotalFrames() int
	FirstValidGlobalTS(globalTS int) (int, error)
	UnitCounts(labelStream int) []int
	SupportsBatchSubsetting() bool
	SetVerbosity(v int)
}

var _ BatchSource = (*Source)(nil)
