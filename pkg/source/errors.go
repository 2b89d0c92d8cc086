package source

import (
	"fmt"

	"github.com/haivivi/minibatch/pkg/corpus"
)

// ErrLogic tags internal-invariant violations; it is the same sentinel the
// catalog uses, so errors.Is(err, source.ErrLogic) classifies invariant
// failures from the whole engine.
var ErrLogic = corpus.ErrLogic

// ErrNotOnBoundary is returned by GetBatch in utterance mode when globalTS
// does not fall on a randomized utterance boundary. Use FirstValidGlobalTS
// to snap a requested start time to a boundary first.
var ErrNotOnBoundary = fmt.Errorf("%w: globalTS does not match an utterance boundary", ErrLogic)

// logicErrorf builds an ErrLogic-tagged error.
func logicErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLogic, fmt.Sprintf(format, args...))
}
