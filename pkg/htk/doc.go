// Package htk reads and writes HTK feature archives.
//
// An archive file holds a 12-byte big-endian header (sample count, sample
// period in 100ns units, bytes per sample, parameter kind) followed by the
// frames as 4-byte big-endian floats. Script entries name an archive plus
// an optional frame range:
//
//	logical.mfc=physical.chunk[1024,2047]
//	utt42.fbank[0,511]
//	utt42.fbank
//
// The logical path (minus its final extension) is the utterance key that
// joins features with labels and lattices.
package htk
