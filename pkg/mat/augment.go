package mat

import "fmt"

// AugmentationExtent computes the symmetric neighbor extent implied by a
// model input dimension. The model dimension must be an odd multiple of the
// raw feature dimension; the extent is half the window width in frames.
// For example rawDim=39, modelDim=429 gives an 11-frame window, extent 5.
func AugmentationExtent(rawDim, modelDim int) (int, error) {
	if rawDim <= 0 || modelDim%rawDim != 0 {
		return 0, fmt.Errorf("mat: model dimension %d not a multiple of feature dimension %d", modelDim, rawDim)
	}
	windowFrames := modelDim / rawDim
	if windowFrames%2 == 0 {
		return 0, fmt.Errorf("mat: augmentation window of %d frames is not odd", windowFrames)
	}
	return windowFrames / 2, nil
}

// AugmentNeighbors fills dst column dstCol with the frames
// src[t-leftExt .. t+rightExt] stacked vertically, clamping at utterance
// boundaries by repeating the edge frame. boundaryFlags, when non-nil,
// marks columns that must not be entered; the walk stops before a flagged
// column and repeats the last column it reached instead. dst must have
// Rows == (leftExt+rightExt+1)
// * src.Rows().
func AugmentNeighbors(src Stripe, boundaryFlags []bool, t, leftExt, rightExt int, dst *Matrix, dstCol int) {
	rawDim := src.Rows()
	want := (leftExt + rightExt + 1) * rawDim
	if dst.Rows() != want {
		panic(fmt.Sprintf("mat: augmented column of %d rows does not hold a %d-frame window of dim %d", dst.Rows(), leftExt+rightExt+1, rawDim))
	}
	out := dst.Col(dstCol)
	n := src.Cols()
	for w := -leftExt; w <= rightExt; w++ {
		j := clampFrame(t, w, n, boundaryFlags)
		copy(out[(w+leftExt)*rawDim:(w+leftExt+1)*rawDim], src.Col(j))
	}
}

// clampFrame resolves the neighbor at offset w from t, clamping to [0, n)
// and stopping at boundary-flagged frames.
func clampFrame(t, w, n int, boundaryFlags []bool) int {
	j := t
	step := 1
	if w < 0 {
		step = -1
		w = -w
	}
	for ; w > 0; w-- {
		next := j + step
		if next < 0 || next >= n {
			break
		}
		if boundaryFlags != nil && boundaryFlags[next] {
			break
		}
		j = next
	}
	return j
}
