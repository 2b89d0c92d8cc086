package corpus

import (
	"errors"
	"fmt"
)

// Configuration errors reported by Build. They indicate broken inputs and
// are fatal to construction.
var (
	// ErrConfig tags all configuration errors.
	ErrConfig = errors.New("invalid configuration")

	// ErrTooManyInvalid is reported when more than half of the corpus is
	// unusable, which almost always means mismatched scp/label files
	// rather than a few bad recordings.
	ErrTooManyInvalid = fmt.Errorf("%w: too many invalid utterances", ErrConfig)
)

// ErrLogic tags internal-invariant violations. Seeing one means a bug in
// the engine, not bad input; callers should not try to recover.
var ErrLogic = errors.New("logic error")

// logicErrorf builds an ErrLogic-tagged error.
func logicErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLogic, fmt.Sprintf(format, args...))
}

// configErrorf builds an ErrConfig-tagged error.
func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
