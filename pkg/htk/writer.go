package htk

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/haivivi/minibatch/pkg/mat"
)

// ParmKind builds a parmKind field from a base kind name and qualifier
// suffixes, the inverse of KindName.
func ParmKind(name string) (uint16, error) {
	// longest base-name match ("LPCEPSTRA" must not match as "LPC")
	var kind uint16
	best := -1
	for code, base := range kindNames {
		if len(base) > best && len(name) >= len(base) && name[:len(base)] == base {
			kind, best = code, len(base)
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("htk: unknown parameter kind %q", name)
	}
	rest := name[best:]
	for rest != "" {
		matched := false
		for _, q := range kindQualifiers {
			if len(rest) >= len(q.name) && rest[:len(q.name)] == q.name {
				kind |= q.bit
				rest = rest[len(q.name):]
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("htk: unknown qualifier in kind %q", name)
		}
	}
	return kind, nil
}

// Write emits a complete archive to w: header plus all columns of frames
// as big-endian float32 vectors. samplePeriod is in 100ns units.
func Write(w io.Writer, kind string, samplePeriod int, frames *mat.Matrix) error {
	parmKind, err := ParmKind(kind)
	if err != nil {
		return err
	}
	h := header{
		NSamples:     int32(frames.Cols()),
		SamplePeriod: int32(samplePeriod),
		SampSize:     int16(frames.Rows() * 4),
		ParmKind:     parmKind,
	}
	if err := binary.Write(w, binary.BigEndian, h); err != nil {
		return fmt.Errorf("htk: write header: %w", err)
	}
	buf := make([]byte, frames.Rows()*4)
	for j := 0; j < frames.Cols(); j++ {
		col := frames.Col(j)
		for i, v := range col {
			binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("htk: write frame %d: %w", j, err)
		}
	}
	return nil
}
