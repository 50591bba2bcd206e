// Package tensor holds the dense float32 primitives the streaming core is
// built on: matrix-vector products, elementwise arithmetic, softmax and the
// two normalization kernels. Everything operates on flat row-major slices.
package tensor

import "math"

// MatVec computes w*x where w is row-major [rows][cols] and x has length
// cols. The result has length rows.
func MatVec(w []float32, x []float32, rows, cols int) []float32 {
	out := make([]float32, rows)
	for i := 0; i < rows; i++ {
		sum := float32(0.0)
		row := w[i*cols : (i+1)*cols]
		for j := 0; j < cols; j++ {
			sum += row[j] * x[j]
		}
		out[i] = sum
	}
	return out
}

// Dot returns the inner product of a and b.
func Dot(a, b []float32) float32 {
	sum := float32(0.0)
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Add returns a+b as a new slice.
func Add(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// AddInPlace accumulates b into a.
func AddInPlace(a, b []float32) {
	for i := range a {
		a[i] += b[i]
	}
}

// Scale multiplies x by s in place.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// SquaredDistance returns the squared Euclidean distance between a and b.
func SquaredDistance(a, b []float32) float32 {
	sum := float32(0.0)
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Softmax normalizes x in place with the usual max subtraction.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	max := x[0]
	for _, v := range x {
		if v > max {
			max = v
		}
	}
	sum := float32(0.0)
	for i := range x {
		x[i] = float32(math.Exp(float64(x[i] - max)))
		sum += x[i]
	}
	if sum > 0 {
		invSum := float32(1.0) / sum
		for i := range x {
			x[i] *= invSum
		}
	}
}

// RMS returns the root mean square of x.
func RMS(x []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	sumSquares := float32(0.0)
	for _, v := range x {
		sumSquares += v * v
	}
	return float32(math.Sqrt(float64(sumSquares / float32(len(x)))))
}

// RMSNorm scales input by its root mean square (no mean subtraction) and
// applies the learned gain. gain has the same length as input.
func RMSNorm(input, gain []float32, eps float32) []float32 {
	dim := len(input)
	out := make([]float32, dim)
	sumSquares := float32(0.0)
	for _, v := range input {
		sumSquares += v * v
	}
	rms := float32(math.Sqrt(float64(sumSquares/float32(dim)) + float64(eps)))
	for i := 0; i < dim; i++ {
		out[i] = (input[i] / rms) * gain[i]
	}
	return out
}

// LayerNorm subtracts the mean and divides by the standard deviation before
// applying the learned affine transform.
func LayerNorm(input, gain, bias []float32, eps float32) []float32 {
	dim := len(input)
	out := make([]float32, dim)
	mean := float32(0.0)
	for _, v := range input {
		mean += v
	}
	mean /= float32(dim)
	variance := float32(0.0)
	for _, v := range input {
		d := v - mean
		variance += d * d
	}
	variance /= float32(dim)
	invStd := float32(1.0) / float32(math.Sqrt(float64(variance)+float64(eps)))
	for i := 0; i < dim; i++ {
		out[i] = (input[i]-mean)*invStd*gain[i] + bias[i]
	}
	return out
}
