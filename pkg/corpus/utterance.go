package corpus

import "github.com/haivivi/minibatch/pkg/htk"

// Desc describes one utterance within one feature stream: where its frames
// live and where its labels begin in the flat label vectors.
// Immutable once its chunk is sealed.
type Desc struct {
	Path          htk.Path
	ClassIDsBegin int
	frames        int
}

// NumFrames returns the utterance's frame count.
func (d Desc) NumFrames() int { return d.frames }

// Key returns the utterance key used for label and lattice lookup.
func (d Desc) Key() string { return d.Path.Key() }
