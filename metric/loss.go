package metric

import (
	"log"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// BCEWithLogitsLoss is the mean binary cross entropy of logits against
// a target of the same number of elements.
func BCEWithLogitsLoss(logit, target *ts.Tensor) *ts.Tensor {
	logitR := logit.MustReshape([]int64{-1}, false)
	targetR := target.MustReshape([]int64{-1}, false).MustTotype(gotch.Double, true)
	logitD := logitR.MustTotype(gotch.Double, true)

	// NOTE: reduction: none = 0; mean = 1; sum = 2.
	loss := logitD.MustBinaryCrossEntropyWithLogits(targetR, ts.NewTensor(), ts.NewTensor(), 1, true)
	targetR.MustDrop()

	return loss
}

// overlap thresholds pred and target at 0.5 and returns the sizes of their
// intersection and of each set.
func overlap(pred, target *ts.Tensor) (inter, p, t float64) {
	pflat := pred.MustView([]int64{-1}, false)
	tflat := target.MustView([]int64{-1}, false)
	pb := pflat.MustGt(ts.FloatScalar(0.5), true)
	tb := tflat.MustGt(ts.FloatScalar(0.5), true)

	mul := pb.MustMul(tb, false)
	interTs := mul.MustSum(gotch.Double, true)
	pTs := pb.MustSum(gotch.Double, true)
	tTs := tb.MustSum(gotch.Double, true)

	inter = interTs.Float64Values()[0]
	p = pTs.Float64Values()[0]
	t = tTs.Float64Values()[0]
	interTs.MustDrop()
	pTs.MustDrop()
	tTs.MustDrop()

	return inter, p, t
}

const smooth = 1e-7

// DiceCoeff is 2|P∩T| / (|P|+|T|) on binarized pred and target.
// Ref. http://campar.in.tum.de/pub/milletari2016Vnet/milletari2016Vnet.pdf
func DiceCoeff(pred, target *ts.Tensor) float64 {
	inter, p, t := overlap(pred, target)
	return (2*inter + smooth) / (p + t + smooth)
}

// DiceCoeffBatch averages DiceCoeff over the first axis.
func DiceCoeffBatch(pred, target *ts.Tensor) float64 {
	preds := pred.MustUnbind(0, false)
	targets := target.MustUnbind(0, false)
	if len(preds) != len(targets) {
		log.Fatalf("Batch size mismatch: %v vs %v\n", len(preds), len(targets))
	}

	var sum float64
	for i := range preds {
		sum += DiceCoeff(&preds[i], &targets[i])
		preds[i].MustDrop()
		targets[i].MustDrop()
	}

	return sum / float64(len(preds))
}

// IoU is |P∩T| / |P∪T| on binarized pred and target.
func IoU(pred, target *ts.Tensor) float64 {
	inter, p, t := overlap(pred, target)
	return (inter + smooth) / (p + t - inter + smooth)
}

// LossFn computes a scalar loss tensor from an output and a target.
type LossFn func(output, target *ts.Tensor) *ts.Tensor

// SupervisionWeights returns n weights 0.5^i normalised to sum to one.
func SupervisionWeights(n int) []float64 {
	weights := make([]float64, n)
	var sum float64
	w := 1.0
	for i := range weights {
		weights[i] = w
		sum += w
		w /= 2
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// DeepSupervisionLoss computes loss on each slice of a stacked training
// output [batch, 1+heads, channels, *spatial] and returns their weighted
// sum. Slice 0 is the primary output and gets the largest weight.
func DeepSupervisionLoss(stacked, target *ts.Tensor, loss LossFn) *ts.Tensor {
	outputs := stacked.MustUnbind(1, false)
	weights := SupervisionWeights(len(outputs))

	var total *ts.Tensor
	for i := range outputs {
		l := loss(&outputs[i], target).MustMul1(ts.FloatScalar(weights[i]), true)
		outputs[i].MustDrop()
		if total == nil {
			total = l
			continue
		}
		total = total.MustAdd(l, true)
		l.MustDrop()
	}

	return total
}
