package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// uniform fills n values from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func uniform(rng *rand.Rand, n, fanIn int) []float64 {
	bound := 1 / math.Sqrt(float64(fanIn))
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * bound
	}
	return out
}

// Conv1d is a single-dilation, unpadded 1-D convolution.
type Conv1d struct {
	In, Out, Kernel, Stride int
	Weight                  []float64 // [Out][In][Kernel]
	Bias                    []float64 // [Out]
}

func newConv1d(rng *rand.Rand, in, out, kernel, stride int) *Conv1d {
	fanIn := in * kernel
	return &Conv1d{
		In: in, Out: out, Kernel: kernel, Stride: stride,
		Weight: uniform(rng, out*in*kernel, fanIn),
		Bias:   uniform(rng, out, fanIn),
	}
}

// OutLen returns the output length for an input of length n.
func (c *Conv1d) OutLen(n int) int {
	if n < c.Kernel {
		return 0
	}
	return (n-c.Kernel)/c.Stride + 1
}

// Forward maps [In][n] to [Out][OutLen(n)].
func (c *Conv1d) Forward(x [][]float64) [][]float64 {
	n := c.OutLen(len(x[0]))
	y := make([][]float64, c.Out)
	for o := range y {
		row := make([]float64, n)
		for p := range row {
			start := p * c.Stride
			sum := c.Bias[o]
			for i := 0; i < c.In; i++ {
				w := c.Weight[(o*c.In+i)*c.Kernel : (o*c.In+i+1)*c.Kernel]
				sum += floats.Dot(w, x[i][start:start+c.Kernel])
			}
			row[p] = sum
		}
		y[o] = row
	}
	return y
}

func (c *Conv1d) params(prefix string, sd StateDict) {
	sd[prefix+".weight"] = Tensor{Shape: []int{c.Out, c.In, c.Kernel}, Data: c.Weight}
	sd[prefix+".bias"] = Tensor{Shape: []int{c.Out}, Data: c.Bias}
}

// Linear is a fully connected layer y = Wx + b.
type Linear struct {
	Weight *mat.Dense // Out x In
	Bias   []float64
}

func newLinear(rng *rand.Rand, in, out int) *Linear {
	return &Linear{
		Weight: mat.NewDense(out, in, uniform(rng, out*in, in)),
		Bias:   uniform(rng, out, in),
	}
}

// Forward applies the layer to x.
func (l *Linear) Forward(x []float64) []float64 {
	out, _ := l.Weight.Dims()
	var y mat.VecDense
	y.MulVec(l.Weight, mat.NewVecDense(len(x), x))
	res := make([]float64, out)
	for i := range res {
		res[i] = y.AtVec(i) + l.Bias[i]
	}
	return res
}

func (l *Linear) params(prefix string, sd StateDict) {
	r, c := l.Weight.Dims()
	sd[prefix+".weight"] = Tensor{Shape: []int{r, c}, Data: l.Weight.RawMatrix().Data}
	sd[prefix+".bias"] = Tensor{Shape: []int{r}, Data: l.Bias}
}

// lstmDir holds one direction of an LSTM layer. Gates are stacked in the
// order input, forget, cell, output.
type lstmDir struct {
	hidden int
	wih    *mat.Dense // 4H x In
	whh    *mat.Dense // 4H x H
	bih    []float64
	bhh    []float64
}

func newLSTMDir(rng *rand.Rand, in, hidden int) *lstmDir {
	return &lstmDir{
		hidden: hidden,
		wih:    mat.NewDense(4*hidden, in, uniform(rng, 4*hidden*in, hidden)),
		whh:    mat.NewDense(4*hidden, hidden, uniform(rng, 4*hidden*hidden, hidden)),
		bih:    uniform(rng, 4*hidden, hidden),
		bhh:    uniform(rng, 4*hidden, hidden),
	}
}

// run processes seq in the given order and returns the hidden state after
// each step, indexed by sequence position.
func (d *lstmDir) run(seq [][]float64, reverse bool) [][]float64 {
	h := mat.NewVecDense(d.hidden, nil)
	c := make([]float64, d.hidden)
	out := make([][]float64, len(seq))

	var gi, gh mat.VecDense
	for s := range seq {
		t := s
		if reverse {
			t = len(seq) - 1 - s
		}
		gi.MulVec(d.wih, mat.NewVecDense(len(seq[t]), seq[t]))
		gh.MulVec(d.whh, h)

		H := d.hidden
		next := make([]float64, H)
		for j := 0; j < H; j++ {
			gate := func(k int) float64 {
				idx := k*H + j
				return gi.AtVec(idx) + gh.AtVec(idx) + d.bih[idx] + d.bhh[idx]
			}
			i := sigmoid(gate(0))
			f := sigmoid(gate(1))
			g := math.Tanh(gate(2))
			o := sigmoid(gate(3))
			c[j] = f*c[j] + i*g
			next[j] = o * math.Tanh(c[j])
		}
		h = mat.NewVecDense(H, next)
		out[t] = next
	}
	return out
}

func (d *lstmDir) params(prefix, suffix string, sd StateDict) {
	r, c := d.wih.Dims()
	sd[prefix+".weight_ih"+suffix] = Tensor{Shape: []int{r, c}, Data: d.wih.RawMatrix().Data}
	r, c = d.whh.Dims()
	sd[prefix+".weight_hh"+suffix] = Tensor{Shape: []int{r, c}, Data: d.whh.RawMatrix().Data}
	sd[prefix+".bias_ih"+suffix] = Tensor{Shape: []int{len(d.bih)}, Data: d.bih}
	sd[prefix+".bias_hh"+suffix] = Tensor{Shape: []int{len(d.bhh)}, Data: d.bhh}
}

// BiLSTM is a single-layer bidirectional LSTM.
type BiLSTM struct {
	fwd, bwd *lstmDir
}

func newBiLSTM(rng *rand.Rand, in, hidden int) *BiLSTM {
	return &BiLSTM{fwd: newLSTMDir(rng, in, hidden), bwd: newLSTMDir(rng, in, hidden)}
}

// Last returns the concatenated forward and backward outputs at the final
// sequence position.
func (l *BiLSTM) Last(seq [][]float64) []float64 {
	if len(seq) == 0 {
		return make([]float64, 2*l.fwd.hidden)
	}
	f := l.fwd.run(seq, false)
	b := l.bwd.run(seq, true)
	last := len(seq) - 1
	return append(append([]float64{}, f[last]...), b[last]...)
}

func (l *BiLSTM) params(prefix string, sd StateDict) {
	l.fwd.params(prefix, "_l0", sd)
	l.bwd.params(prefix, "_l0_reverse", sd)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// relu applies max(0, x) in place.
func relu(x [][]float64) [][]float64 {
	for _, row := range x {
		for i, v := range row {
			if v < 0 {
				row[i] = 0
			}
		}
	}
	return x
}

func relu1(x []float64) []float64 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// maxPool2 halves each channel, dropping a trailing odd sample.
func maxPool2(x [][]float64) [][]float64 {
	y := make([][]float64, len(x))
	for c, row := range x {
		out := make([]float64, len(row)/2)
		for i := range out {
			out[i] = math.Max(row[2*i], row[2*i+1])
		}
		y[c] = out
	}
	return y
}

// Softmax returns a probability distribution over logits.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := floats.Max(logits)
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// checkTensor verifies that sd holds name with the given shape.
func checkTensor(sd StateDict, name string, shape []int) error {
	t, ok := sd[name]
	if !ok {
		return fmt.Errorf("nn: missing tensor %s", name)
	}
	if !sameShape(t.Shape, shape) || len(t.Data) != t.Size() {
		return fmt.Errorf("nn: tensor %s: shape %v, want %v", name, t.Shape, shape)
	}
	return nil
}
