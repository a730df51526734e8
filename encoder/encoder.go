package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Encoder is encoder interface for a image segmentation model.
// ForwardAll returns the feature maps of every encoder level, from the
// highest resolution to the deepest.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
}

// Output is the result of running a backbone.
type Output struct {
	// ClsFeature is the deepest feature map, fed to classification heads.
	ClsFeature *ts.Tensor
	// HiddenStates holds every level's feature map, shallow to deep.
	// The last element is ClsFeature.
	HiddenStates []*ts.Tensor
}

// Encode runs enc and wraps its features into an Output.
func Encode(enc Encoder, x *ts.Tensor, train bool) *Output {
	features := enc.ForwardAll(x, train)
	out := &Output{HiddenStates: features}
	if len(features) > 0 {
		out.ClsFeature = features[len(features)-1]
	}

	return out
}

// Drop releases every feature held by o.
func (o *Output) Drop() {
	for _, f := range o.HiddenStates {
		f.MustDrop()
	}
	o.HiddenStates = nil
	o.ClsFeature = nil
}
