package nn

import (
	"fmt"
	"math/rand"
)

// WindowSize is the fixed input length, in samples, of every ConvNet.
const WindowSize = 10000

// Head selects the stage that follows the shared convolutional trunk.
type Head int

const (
	// HeadDense flattens the trunk output into three fully connected layers.
	HeadDense Head = iota
	// HeadRecurrent runs a bidirectional LSTM over trunk time steps and
	// projects the final step.
	HeadRecurrent
)

const (
	trunkChannels1 = 64
	trunkChannels2 = 128
	trunkKernel    = 10
	trunkStride    = 5
	denseHidden1   = 128
	denseHidden2   = 64
	lstmHidden     = 64
)

// ConvNet is a conv(1→64) → pool → conv(64→128) → pool trunk followed by a
// dense or recurrent head. Forward allocates per call, so a ConvNet may be
// shared across goroutines once loaded.
type ConvNet struct {
	head    Head
	outputs int

	conv1, conv2 *Conv1d

	fc1, fc2, fc3 *Linear // HeadDense
	lstm          *BiLSTM // HeadRecurrent
	fc            *Linear // HeadRecurrent
}

// NewConvNet builds a network with deterministic parameters drawn from seed.
func NewConvNet(head Head, outputs int, seed int64) *ConvNet {
	rng := rand.New(rand.NewSource(seed))
	n := &ConvNet{
		head:    head,
		outputs: outputs,
		conv1:   newConv1d(rng, 1, trunkChannels1, trunkKernel, trunkStride),
		conv2:   newConv1d(rng, trunkChannels1, trunkChannels2, trunkKernel, trunkStride),
	}
	switch head {
	case HeadDense:
		n.fc1 = newLinear(rng, trunkChannels2*n.trunkSteps(), denseHidden1)
		n.fc2 = newLinear(rng, denseHidden1, denseHidden2)
		n.fc3 = newLinear(rng, denseHidden2, outputs)
	case HeadRecurrent:
		n.lstm = newBiLSTM(rng, trunkChannels2, lstmHidden)
		n.fc = newLinear(rng, 2*lstmHidden, outputs)
	default:
		panic(fmt.Sprintf("nn: unknown head %d", head))
	}
	return n
}

// trunkSteps is the time length of the trunk output for WindowSize input.
func (n *ConvNet) trunkSteps() int {
	steps := n.conv1.OutLen(WindowSize) / 2
	return n.conv2.OutLen(steps) / 2
}

// InputLength returns the expected input length.
func (n *ConvNet) InputLength() int { return WindowSize }

// Outputs returns the size of the output vector.
func (n *ConvNet) Outputs() int { return n.outputs }

// Forward runs inference on exactly InputLength samples and returns the
// raw output vector (logits or scores).
func (n *ConvNet) Forward(x []float64) ([]float64, error) {
	if len(x) != WindowSize {
		return nil, fmt.Errorf("nn: input length %d, want %d", len(x), WindowSize)
	}
	h := [][]float64{x}
	h = maxPool2(relu(n.conv1.Forward(h)))
	h = maxPool2(relu(n.conv2.Forward(h)))

	if n.head == HeadRecurrent {
		steps := len(h[0])
		seq := make([][]float64, steps)
		for t := range seq {
			v := make([]float64, len(h))
			for c := range h {
				v[c] = h[c][t]
			}
			seq[t] = v
		}
		return n.fc.Forward(n.lstm.Last(seq)), nil
	}

	flat := make([]float64, 0, len(h)*len(h[0]))
	for _, row := range h {
		flat = append(flat, row...)
	}
	y := relu1(n.fc1.Forward(flat))
	y = relu1(n.fc2.Forward(y))
	return n.fc3.Forward(y), nil
}

// StateDict returns the network parameters by name. The tensors alias the
// network's storage.
func (n *ConvNet) StateDict() StateDict {
	sd := StateDict{}
	n.conv1.params("conv1", sd)
	n.conv2.params("conv2", sd)
	if n.head == HeadRecurrent {
		n.lstm.params("lstm", sd)
		n.fc.params("fc", sd)
	} else {
		n.fc1.params("fc1", sd)
		n.fc2.params("fc2", sd)
		n.fc3.params("fc3", sd)
	}
	return sd
}

// LoadStateDict replaces the parameters with those in sd. Every tensor is
// checked before any is copied, so on error the network is unchanged.
func (n *ConvNet) LoadStateDict(sd StateDict) error {
	own := n.StateDict()
	for name, t := range own {
		if err := checkTensor(sd, name, t.Shape); err != nil {
			return err
		}
	}
	for name, t := range own {
		copy(t.Data, sd[name].Data)
	}
	return nil
}
