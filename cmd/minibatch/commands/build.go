package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/haivivi/minibatch/pkg/cli"
	"github.com/haivivi/minibatch/pkg/corpus"
	"github.com/haivivi/minibatch/pkg/htk"
	"github.com/haivivi/minibatch/pkg/lattice"
	"github.com/haivivi/minibatch/pkg/mlf"
	"github.com/haivivi/minibatch/pkg/source"
)

// buildResult bundles everything assembled from a manifest.
type buildResult struct {
	manifest *cli.Manifest
	corp     *corpus.Corpus
	streams  []*corpus.Stream
	infos    []htk.Info // probed per stream, for display
	lattices *lattice.KVArchive
}

// Close releases the lattice archive, if one was opened.
func (b *buildResult) Close() {
	if b.lattices != nil {
		b.lattices.Close()
	}
}

// buildCorpus loads a manifest's scp and label files and builds the
// catalog.
func buildCorpus(ctx context.Context, manifestPath string) (*buildResult, error) {
	m, err := cli.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	archive, err := m.OpenArchive()
	if err != nil {
		return nil, err
	}

	inFiles := make([][]string, len(m.Streams))
	for i, sc := range m.Streams {
		if inFiles[i], err = cli.ReadSCP(m.Resolve(sc.SCP)); err != nil {
			return nil, err
		}
	}

	var labels []map[string][]mlf.Segment
	var udim []int
	for _, lc := range m.Labels {
		states, err := cli.ReadNameList(m.Resolve(lc.States), 0)
		if err != nil {
			return nil, err
		}
		var phones map[string]int
		if lc.Phones != "" {
			if phones, err = cli.ReadNameList(m.Resolve(lc.Phones), 1); err != nil {
				return nil, err
			}
		}
		f, err := os.Open(m.Resolve(lc.MLF))
		if err != nil {
			return nil, fmt.Errorf("open mlf: %w", err)
		}
		segs, err := mlf.Parse(f, mlf.Options{States: states, Phones: phones})
		f.Close()
		if err != nil {
			return nil, err
		}
		labels = append(labels, segs)
		dim := lc.UDim
		if dim == 0 {
			dim = len(states)
		}
		udim = append(udim, dim)
	}

	res := &buildResult{manifest: m}
	var lats lattice.Source = lattice.NoSource{}
	if m.Lattices != "" {
		if res.lattices, err = lattice.OpenKV(lattice.KVOptions{Dir: m.Resolve(m.Lattices)}); err != nil {
			return nil, err
		}
		lats = res.lattices
	}

	res.corp, err = corpus.Build(corpus.BuildOptions{
		InFiles:     inFiles,
		Labels:      labels,
		UDim:        udim,
		Lattices:    lats,
		ChunkFrames: m.ChunkFrames,
	})
	if err != nil {
		res.Close()
		return nil, err
	}
	if res.corp.NumUtterances == 0 {
		res.Close()
		return nil, fmt.Errorf("corpus is empty after validation")
	}

	// probe each stream's feature info up front so vdim defaults and the
	// inspect output have real dimensions to work with
	for i := range m.Streams {
		reader := htk.NewReader(archive)
		res.streams = append(res.streams, corpus.NewStream(reader))
		info, err := reader.GetInfo(ctx, res.corp.Chunks[i][0].Utterance(0).Path)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.infos = append(res.infos, info)
	}
	return res, nil
}

// buildSource wires a Source on top of a built corpus.
func (b *buildResult) buildSource() (*source.Source, error) {
	m := b.manifest
	vdim := make([]int, len(m.Streams))
	left := make([]int, len(m.Streams))
	right := make([]int, len(m.Streams))
	var transcripts map[string][]lattice.Word
	for i, sc := range m.Streams {
		vdim[i] = sc.VDim
		if vdim[i] == 0 {
			vdim[i] = b.infos[i].Dim
		}
		left[i], right[i] = sc.LeftContext, sc.RightContext
	}
	return source.New(source.Options{
		Corpus:             b.corp,
		Streams:            b.streams,
		VDim:               vdim,
		LeftContext:        left,
		RightContext:       right,
		RandomizationRange: m.RandomizationRange,
		WordTranscripts:    transcripts,
		FrameMode:          m.FrameMode,
		Verbosity:          verbosity(),
	})
}
