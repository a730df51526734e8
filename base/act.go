package base

import (
	"log"
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ActKind names an activation function.
type ActKind string

const (
	ActReLU      ActKind = "RELU"
	ActLeakyReLU ActKind = "LEAKYRELU"
	ActTanh      ActKind = "TANH"
	ActSigmoid   ActKind = "SIGMOID"
	ActIdentity  ActKind = "IDENTITY"
)

// Act selects an activation and its parameters.
type Act struct {
	Kind          ActKind
	NegativeSlope float64 // leaky relu
}

// DefaultAct is leaky relu with slope 0.01.
func DefaultAct() Act {
	return Act{Kind: ActLeakyReLU, NegativeSlope: 0.01}
}

// ParseAct parses a kind name such as "relu" or "leakyrelu".
func ParseAct(name string) (Act, error) {
	a := DefaultAct()
	a.Kind = ActKind(strings.ToUpper(strings.TrimSpace(name)))
	if err := a.Validate(); err != nil {
		return Act{}, err
	}
	return a, nil
}

// Validate rejects unknown kinds.
func (a Act) Validate() error {
	switch a.Kind {
	case ActReLU, ActLeakyReLU, ActTanh, ActSigmoid, ActIdentity:
		return nil
	}
	return errors.Errorf("unsupported activation kind %q", a.Kind)
}

// leakyRelu computes relu(x) - slope * relu(-x).
func leakyRelu(x *ts.Tensor, slope float64) *ts.Tensor {
	pos := x.MustRelu(false)
	neg := x.MustNeg(false).MustRelu(true).MustMul1(ts.FloatScalar(slope), true)
	out := pos.MustSub(neg, true)
	neg.MustDrop()

	return out
}

// NewAct creates the activation module.
func NewAct(act Act) ts.ModuleT {
	switch act.Kind {
	case ActReLU:
		return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return xs.MustRelu(false)
		})
	case ActLeakyReLU:
		slope := act.NegativeSlope
		return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return leakyRelu(xs, slope)
		})
	case ActTanh:
		return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return xs.MustTanh(false)
		})
	case ActSigmoid:
		return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return xs.MustSigmoid(false)
		})
	case ActIdentity:
		return NewIdentity()
	}

	log.Fatalf("Unsupported activation kind: %q\n", act.Kind)
	return nil
}

// NewDropout returns a dropout layer, or an Identity when p is zero.
func NewDropout(p float64) ts.ModuleT {
	if p <= 0 {
		return NewIdentity()
	}
	return nn.NewFuncT(func(xs *ts.Tensor, train bool) *ts.Tensor {
		return ts.MustDropout(xs, p, train)
	})
}
