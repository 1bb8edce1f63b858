// ==================================
// File: internal/risk/network.go
// ==================================
package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/solwatch/solwatch/internal/features"
)

// Network dimensions: 29 -> 64 -> 32 -> 4.
const (
	inputDim  = features.VectorSize
	hidden1   = 64
	hidden2   = 32
	outputDim = 4
)

// Output class order of the softmax layer.
const (
	classSafe = iota
	classSuspicious
	classDangerous
	classScam
)

// layer holds one fully-connected layer with ternary weights. Weights
// are stored row-major, one int8 per weight, restricted to {-1, 0, +1}
// at training time; inference therefore needs only additions and
// subtractions of the input activations.
type layer struct {
	in, out int
	weights []int8
	biases  []float32
}

// weightsFile is the on-disk schema: exactly three weight/bias pairs.
type weightsFile struct {
	Layers []struct {
		Weights []int8    `json:"weights"`
		Biases  []float32 `json:"biases"`
	} `json:"layers"`
}

// TernaryNetwork is the compiled feedforward classifier.
type TernaryNetwork struct {
	layers [3]layer
}

// LoadNetwork parses the quantised weights file once at startup.
func LoadNetwork(path string) (*TernaryNetwork, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var file weightsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}
	if len(file.Layers) != 3 {
		return nil, fmt.Errorf("expected 3 layers, got %d", len(file.Layers))
	}

	dims := [3][2]int{{inputDim, hidden1}, {hidden1, hidden2}, {hidden2, outputDim}}
	net := &TernaryNetwork{}
	for i, l := range file.Layers {
		in, out := dims[i][0], dims[i][1]
		if len(l.Weights) != in*out {
			return nil, fmt.Errorf("layer %d: expected %d weights, got %d", i, in*out, len(l.Weights))
		}
		if len(l.Biases) != out {
			return nil, fmt.Errorf("layer %d: expected %d biases, got %d", i, out, len(l.Biases))
		}
		for _, w := range l.Weights {
			if w < -1 || w > 1 {
				return nil, fmt.Errorf("layer %d: weight %d outside ternary range", i, w)
			}
		}
		net.layers[i] = layer{in: in, out: out, weights: l.Weights, biases: l.Biases}
	}
	return net, nil
}

// forward applies one ternary layer: +1 adds the activation, -1
// subtracts it, 0 skips it. No multiplications.
func (l *layer) forward(x []float64) []float64 {
	out := make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		sum := float64(l.biases[o])
		row := l.weights[o*l.in : (o+1)*l.in]
		for i, w := range row {
			switch w {
			case 1:
				sum += x[i]
			case -1:
				sum -= x[i]
			}
		}
		out[o] = sum
	}
	return out
}

// Infer runs the full forward pass and returns the class
// probabilities in {SAFE, SUSPICIOUS, DANGEROUS, SCAM} order.
func (n *TernaryNetwork) Infer(vec [features.VectorSize]float64) [outputDim]float64 {
	x := vec[:]
	x = relu(n.layers[0].forward(x))
	x = relu(n.layers[1].forward(x))
	logits := n.layers[2].forward(x)

	var probs [outputDim]float64
	copy(probs[:], softmax(logits))
	return probs
}

func relu(x []float64) []float64 {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
	return x
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
