package base

import (
	"log"
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// NormKind names a feature normalization.
type NormKind string

const (
	NormInstance NormKind = "INSTANCE"
	NormBatch    NormKind = "BATCH"
	NormGroup    NormKind = "GROUP"
)

// Norm selects a normalization and its parameters.
type Norm struct {
	Kind     NormKind
	Affine   bool    // instance and group
	Eps      float64 // all kinds
	Momentum float64 // batch
	Groups   int64   // group
}

// DefaultNorm is instance normalization with learnable affine parameters.
func DefaultNorm() Norm {
	return Norm{Kind: NormInstance, Affine: true, Eps: 1e-5, Momentum: 0.1, Groups: 1}
}

// ParseNorm parses a kind name such as "instance", "batch" or "group".
func ParseNorm(name string) (Norm, error) {
	n := DefaultNorm()
	n.Kind = NormKind(strings.ToUpper(strings.TrimSpace(name)))
	if err := n.Validate(); err != nil {
		return Norm{}, err
	}
	return n, nil
}

// Validate rejects unknown kinds and invalid parameters.
func (n Norm) Validate() error {
	switch n.Kind {
	case NormInstance, NormBatch:
	case NormGroup:
		if n.Groups <= 0 {
			return errors.Errorf("group norm needs a positive number of groups. Got %v", n.Groups)
		}
	default:
		return errors.Errorf("unsupported norm kind %q", n.Kind)
	}
	if n.Eps <= 0 {
		return errors.Errorf("norm eps must be positive. Got %v", n.Eps)
	}
	return nil
}

// InstanceNorm normalizes each sample and channel over its spatial axes.
type InstanceNorm struct {
	Ws  *ts.Tensor
	Bs  *ts.Tensor
	Eps float64
}

// ForwardT implements ts.ModuleT for InstanceNorm.
func (m *InstanceNorm) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return ts.MustInstanceNorm(x, m.Ws, m.Bs, ts.NewTensor(), ts.NewTensor(), true, 0.1, m.Eps, false)
}

// GroupNorm normalizes groups of channels.
type GroupNorm struct {
	Ws     *ts.Tensor
	Bs     *ts.Tensor
	Groups int64
	Eps    float64
}

// ForwardT implements ts.ModuleT for GroupNorm.
func (m *GroupNorm) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return ts.MustGroupNorm(x, m.Groups, m.Ws, m.Bs, m.Eps, false)
}

func affine(p *nn.Path, c int64, on bool) (ws, bs *ts.Tensor) {
	if !on {
		return ts.NewTensor(), ts.NewTensor()
	}
	return p.Ones("weight", []int64{c}), p.Zeros("bias", []int64{c})
}

// NewNorm creates the normalization layer for c channels.
func NewNorm(p *nn.Path, spatialDims, c int64, norm Norm) ts.ModuleT {
	switch norm.Kind {
	case NormInstance:
		ws, bs := affine(p, c, norm.Affine)
		return &InstanceNorm{Ws: ws, Bs: bs, Eps: norm.Eps}
	case NormGroup:
		ws, bs := affine(p, c, norm.Affine)
		return &GroupNorm{Ws: ws, Bs: bs, Groups: norm.Groups, Eps: norm.Eps}
	case NormBatch:
		config := nn.DefaultBatchNormConfig()
		config.Eps = norm.Eps
		config.Momentum = norm.Momentum
		if spatialDims == 3 {
			return nn.BatchNorm3D(p, c, config)
		}
		return nn.BatchNorm2D(p, c, config)
	}

	log.Fatalf("Unsupported norm kind: %q\n", norm.Kind)
	return nil
}
