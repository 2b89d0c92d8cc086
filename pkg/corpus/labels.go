package corpus

// Sentinel separates utterances in the flat label vectors. One sentinel
// follows each utterance's labels, so a vector holds
// totalFrames + numUtterances entries.
const Sentinel int32 = -1

const labelBlockSize = 1 << 16

// labelVector is a growable int32 vector allocated in fixed-size blocks so
// that appending a large corpus never copies what was already written.
type labelVector struct {
	blocks [][]int32
	n      int
}

// Len returns the number of stored values.
func (v *labelVector) Len() int { return v.n }

// Append adds one value.
func (v *labelVector) Append(x int32) {
	i := v.n / labelBlockSize
	if i == len(v.blocks) {
		v.blocks = append(v.blocks, make([]int32, 0, labelBlockSize))
	}
	v.blocks[i] = append(v.blocks[i], x)
	v.n++
}

// At returns the i-th value.
func (v *labelVector) At(i int) int32 {
	return v.blocks[i/labelBlockSize][i%labelBlockSize]
}

// LabelView is a bounds-checked window over one utterance's labels.
type LabelView struct {
	vec   *labelVector
	first int
	n     int
}

// Len returns the number of labels in the view.
func (w LabelView) Len() int { return w.n }

// At returns the i-th label of the view.
func (w LabelView) At(i int) int32 {
	if i < 0 || i >= w.n {
		panic(logicErrorf("label view index %d out of bounds [0,%d)", i, w.n))
	}
	return w.vec.At(w.first + i)
}

// Labels holds the flattened per-frame label streams of a corpus: for each
// label stream, class ids and phone-boundary ids laid out utterance after
// utterance with a Sentinel terminator each.
type Labels struct {
	classIDs   []*labelVector
	phoneBound []*labelVector
	numClasses []int
	counts     [][]int
}

// newLabels creates stores for n label streams.
func newLabels(n int) *Labels {
	l := &Labels{
		classIDs:   make([]*labelVector, n),
		phoneBound: make([]*labelVector, n),
		numClasses: make([]int, n),
		counts:     make([][]int, n),
	}
	for j := 0; j < n; j++ {
		l.classIDs[j] = &labelVector{}
		l.phoneBound[j] = &labelVector{}
	}
	return l
}

// NumStreams returns the number of label streams.
func (l *Labels) NumStreams() int {
	if l == nil {
		return 0
	}
	return len(l.classIDs)
}

// Supervised reports whether any label stream is present.
func (l *Labels) Supervised() bool { return l.NumStreams() > 0 }

// NumClasses returns the class cardinality observed in stream j
// (max class id + 1).
func (l *Labels) NumClasses(j int) int { return l.numClasses[j] }

// Counts returns per-class frame counts for stream j, for prior
// computation. The returned slice is owned by the store.
func (l *Labels) Counts(j int) []int { return l.counts[j] }

// ClassIDs returns a view of the n class ids of stream j starting at
// classIDsBegin, verifying the utterance's Sentinel terminator.
func (l *Labels) ClassIDs(j, classIDsBegin, n int) (LabelView, error) {
	return l.view(l.classIDs[j], classIDsBegin, n)
}

// PhoneBoundaries returns the matching view over phone-boundary ids.
func (l *Labels) PhoneBoundaries(j, classIDsBegin, n int) (LabelView, error) {
	return l.view(l.phoneBound[j], classIDsBegin, n)
}

func (l *Labels) view(vec *labelVector, first, n int) (LabelView, error) {
	if first < 0 || first+n >= vec.Len() {
		return LabelView{}, logicErrorf("label range [%d,%d) outside vector of %d", first, first+n+1, vec.Len())
	}
	if vec.At(first+n) != Sentinel {
		return LabelView{}, logicErrorf("expected utterance terminator at %d, label vector out of sync", first+n)
	}
	return LabelView{vec: vec, first: first, n: n}, nil
}

// classLen returns the current length of the class-id vectors (identical
// across streams by construction); 0 when unsupervised.
func (l *Labels) classLen() int {
	if len(l.classIDs) == 0 {
		return 0
	}
	return l.classIDs[0].Len()
}

// append records one aligned segment run for stream j.
func (l *Labels) append(j int, classID int32, phoneStart int32, numFrames int) {
	for t := 0; t < numFrames; t++ {
		l.classIDs[j].Append(classID)
		if t == 0 {
			l.phoneBound[j].Append(phoneStart)
		} else {
			l.phoneBound[j].Append(0)
		}
	}
	if int(classID)+1 > l.numClasses[j] {
		l.numClasses[j] = int(classID) + 1
	}
	for len(l.counts[j]) < l.numClasses[j] {
		l.counts[j] = append(l.counts[j], 0)
	}
	l.counts[j][classID] += numFrames
}

// terminate appends the utterance terminator to stream j.
func (l *Labels) terminate(j int) {
	l.classIDs[j].Append(Sentinel)
	l.phoneBound[j].Append(Sentinel)
}
