package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Manifest describes a training corpus: its feature streams, label
// streams, lattice archive, storage backend, and randomization settings.
type Manifest struct {
	// Streams lists the feature streams. At least one is required.
	Streams []StreamConfig `yaml:"streams"`

	// Labels lists the label streams; empty means unsupervised.
	Labels []LabelConfig `yaml:"labels,omitempty"`

	// Lattices is the directory of a lattice archive; empty disables
	// lattice paging.
	Lattices string `yaml:"lattices,omitempty"`

	// FrameMode selects frame-level randomization.
	FrameMode bool `yaml:"frame_mode"`

	// RandomizationRange is the full randomization window in frames.
	// Default 48 hours at 100 frames/s.
	RandomizationRange int `yaml:"randomization_range,omitempty"`

	// ChunkFrames overrides the chunk target size in frames.
	ChunkFrames int `yaml:"chunk_frames,omitempty"`

	Storage StorageConfig `yaml:"storage"`

	// dir is the manifest's directory; relative paths resolve against it.
	dir string
}

// StreamConfig describes one feature stream.
type StreamConfig struct {
	// SCP is the script file listing one archive entry per line.
	SCP string `yaml:"scp"`

	// VDim is the output dimension after context augmentation; 0 means
	// "raw dimension" and is filled from the first archive at build time.
	VDim int `yaml:"vdim,omitempty"`

	LeftContext  int `yaml:"left_context,omitempty"`
	RightContext int `yaml:"right_context,omitempty"`
}

// LabelConfig describes one label stream.
type LabelConfig struct {
	// MLF is the master label file path.
	MLF string `yaml:"mlf"`

	// States is a file listing one state name per line; the line number
	// is the class id.
	States string `yaml:"states"`

	// Phones optionally lists phone names; line number + 1 is the
	// phone-start id.
	Phones string `yaml:"phones,omitempty"`

	// UDim is the declared class cardinality; 0 means "number of states".
	UDim int `yaml:"udim,omitempty"`
}

// StorageConfig selects and parameterizes the archive backend.
type StorageConfig struct {
	// Backend is "local" (default) or "s3".
	Backend string `yaml:"backend,omitempty"`

	// Root is the local archive root. Empty resolves archive paths
	// relative to the manifest directory.
	Root string `yaml:"root,omitempty"`

	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// DefaultRandomizationRange is 48 hours at 100 frames per second.
const DefaultRandomizationRange = 48 * 3600 * 100

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cli: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cli: parse manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	if len(m.Streams) == 0 {
		return nil, fmt.Errorf("cli: manifest %s lists no feature streams", path)
	}
	for i, s := range m.Streams {
		if s.SCP == "" {
			return nil, fmt.Errorf("cli: stream %d has no scp file", i)
		}
	}
	for j, l := range m.Labels {
		if l.MLF == "" || l.States == "" {
			return nil, fmt.Errorf("cli: label stream %d needs both mlf and states", j)
		}
	}
	if m.RandomizationRange == 0 {
		m.RandomizationRange = DefaultRandomizationRange
	}
	switch m.Storage.Backend {
	case "", "local", "s3":
	default:
		return nil, fmt.Errorf("cli: unknown storage backend %q", m.Storage.Backend)
	}
	return &m, nil
}

// Resolve turns a manifest-relative path into an absolute one.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.dir, path)
}

// ReadSCP reads a script file: one archive entry per line, blank lines
// and #-comments skipped.
func ReadSCP(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cli: open scp: %w", err)
	}
	defer f.Close()

	var entries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cli: read scp %s: %w", path, err)
	}
	return entries, nil
}

// ReadNameList reads a file of one name per line into a name -> id map,
// ids starting at base.
func ReadNameList(path string, base int) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cli: open name list: %w", err)
	}
	defer f.Close()

	names := make(map[string]int)
	sc := bufio.NewScanner(f)
	id := base
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("cli: duplicate name %q in %s", name, path)
		}
		names[name] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cli: read name list %s: %w", path, err)
	}
	return names, nil
}
