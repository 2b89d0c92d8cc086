package mat

import "fmt"

// Matrix is a dense column-major float32 matrix. Each column is one feature
// frame of Rows values. The zero value is an empty matrix.
type Matrix struct {
	rows int
	cols int
	data []float32
}

// New creates a rows x cols matrix with all values zero.
func New(rows, cols int) *Matrix {
	m := &Matrix{}
	m.Resize(rows, cols)
	return m
}

// Rows returns the number of rows (the feature dimension).
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns (the frame count).
func (m *Matrix) Cols() int { return m.cols }

// Empty reports whether the matrix holds no data.
func (m *Matrix) Empty() bool { return len(m.data) == 0 }

// Resize reshapes the matrix to rows x cols, discarding existing content.
// Resize(0, 0) releases the backing storage.
func (m *Matrix) Resize(rows, cols int) {
	n := rows * cols
	if n == 0 {
		m.rows, m.cols, m.data = 0, 0, nil
		return
	}
	if cap(m.data) >= n {
		m.data = m.data[:n]
		clear(m.data)
	} else {
		m.data = make([]float32, n)
	}
	m.rows, m.cols = rows, cols
}

// Col returns the j-th column as a slice aliasing the matrix storage.
func (m *Matrix) Col(j int) []float32 {
	if j < 0 || j >= m.cols {
		panic(fmt.Sprintf("mat: column %d out of range [0,%d)", j, m.cols))
	}
	return m.data[j*m.rows : (j+1)*m.rows]
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float32 { return m.data[j*m.rows+i] }

// Set stores v at row i, column j.
func (m *Matrix) Set(i, j int, v float32) { m.data[j*m.rows+i] = v }

// SetCol copies src into column j. len(src) must equal Rows.
func (m *Matrix) SetCol(j int, src []float32) {
	copy(m.Col(j), src)
}

// Stripe returns a view over cols [first, first+n) of the matrix.
// The view aliases the matrix storage; it is invalidated by Resize.
func (m *Matrix) Stripe(first, n int) Stripe {
	if first < 0 || n < 0 || first+n > m.cols {
		panic(fmt.Sprintf("mat: stripe [%d,%d) out of range [0,%d)", first, first+n, m.cols))
	}
	return Stripe{m: m, first: first, n: n}
}

// Stripe is a read/write view over a contiguous column range of a Matrix.
type Stripe struct {
	m     *Matrix
	first int
	n     int
}

// Rows returns the feature dimension of the underlying matrix.
func (s Stripe) Rows() int { return s.m.rows }

// Cols returns the number of columns covered by the stripe.
func (s Stripe) Cols() int { return s.n }

// Col returns column j of the stripe (j relative to the stripe start).
func (s Stripe) Col(j int) []float32 {
	if j < 0 || j >= s.n {
		panic(fmt.Sprintf("mat: stripe column %d out of range [0,%d)", j, s.n))
	}
	return s.m.Col(s.first + j)
}
