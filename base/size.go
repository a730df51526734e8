package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Size is a kernel, stride or padding value for one stage.
// A single element applies to every spatial axis, otherwise it holds
// one element per axis.
type Size []int64

// Scalar returns a Size applying v to every spatial axis.
func Scalar(v int64) Size {
	return Size{v}
}

// Dims returns a per-axis Size.
func Dims(v ...int64) Size {
	return Size(v)
}

// IsScalar reports whether s applies one value to every axis.
func (s Size) IsScalar() bool {
	return len(s) == 1
}

// Expand returns s as one value per spatial axis.
func (s Size) Expand(spatialDims int64) []int64 {
	out := make([]int64, spatialDims)
	for i := range out {
		if s.IsScalar() {
			out[i] = s[0]
		} else {
			out[i] = s[i]
		}
	}
	return out
}

// Fits reports whether s can be expanded to spatialDims axes.
func (s Size) Fits(spatialDims int64) bool {
	return s.IsScalar() || int64(len(s)) == spatialDims
}

func (s Size) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, "x")
}

// ParseSize parses "3" or "1x3x3".
func ParseSize(str string) (Size, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, errors.New("empty size")
	}

	var s Size
	for _, f := range strings.Split(str, "x") {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid size %q", str)
		}
		s = append(s, v)
	}

	return s, nil
}

// ParseSizes parses a comma separated list of sizes, e.g. "3,1x3x3,3".
// An empty string yields a nil slice.
func ParseSizes(str string) ([]Size, error) {
	if strings.TrimSpace(str) == "" {
		return nil, nil
	}

	var sizes []Size
	for i, f := range strings.Split(str, ",") {
		s, err := ParseSize(f)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d", i)
		}
		sizes = append(sizes, s)
	}

	return sizes, nil
}

// Product multiplies the expanded sizes axis by axis.
func Product(sizes []Size, spatialDims int64) []int64 {
	out := make([]int64, spatialDims)
	for i := range out {
		out[i] = 1
	}
	for _, s := range sizes {
		for i, v := range s.Expand(spatialDims) {
			out[i] *= v
		}
	}
	return out
}

// samePadding returns the per-axis padding keeping a kernel k with stride s
// "same" sized: (k - s + 1) / 2.
func samePadding(kernel, stride []int64) ([]int64, error) {
	pad := make([]int64, len(kernel))
	for i := range kernel {
		p := (kernel[i] - stride[i] + 1) / 2
		if kernel[i]-stride[i]+1 < 0 {
			return nil, fmt.Errorf("negative padding for kernel %v and stride %v", kernel, stride)
		}
		pad[i] = p
	}
	return pad, nil
}

// Padding is the exported form of samePadding, used for validation ahead
// of block construction.
func Padding(kernel, stride Size, spatialDims int64) ([]int64, error) {
	return samePadding(kernel.Expand(spatialDims), stride.Expand(spatialDims))
}

// OutputPadding returns the per-axis output padding a transposed conv with
// kernel and stride needs to undo a same padded conv with the same kernel
// and stride: 2*pad + stride - kernel.
func OutputPadding(kernel, stride Size, spatialDims int64) ([]int64, error) {
	k := kernel.Expand(spatialDims)
	s := stride.Expand(spatialDims)
	pad, err := samePadding(k, s)
	if err != nil {
		return nil, err
	}

	out := make([]int64, spatialDims)
	for i := range out {
		out[i] = 2*pad[i] + s[i] - k[i]
	}
	return out, nil
}
