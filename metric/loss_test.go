package metric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dynunet/metric"
)

func predTarget() (pred, target *ts.Tensor) {
	pslice := []float32{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []float32{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred = ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target = ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)
	return pred, target
}

func TestIoU(t *testing.T) {
	pred, target := predTarget()
	iou := metric.IoU(pred, target)
	assert.InDelta(t, 0.75, iou, 1e-4)
}

func TestDiceCoeff(t *testing.T) {
	pred, target := predTarget()
	dice := metric.DiceCoeff(pred, target)
	assert.InDelta(t, 0.8571, dice, 1e-4)
}

func TestDiceCoeffBatch(t *testing.T) {
	pred, target := predTarget()
	preds := ts.MustCat([]ts.Tensor{*pred, *target}, 0)
	targets := ts.MustCat([]ts.Tensor{*target, *target}, 0)

	// (0.8571 + 1) / 2
	dice := metric.DiceCoeffBatch(preds, targets)
	assert.InDelta(t, 0.9286, dice, 1e-4)
}

func TestSupervisionWeights(t *testing.T) {
	weights := metric.SupervisionWeights(3)
	require.Len(t, weights, 3)
	assert.InDelta(t, 4.0/7, weights[0], 1e-9)
	assert.InDelta(t, 2.0/7, weights[1], 1e-9)
	assert.InDelta(t, 1.0/7, weights[2], 1e-9)

	assert.Equal(t, []float64{1}, metric.SupervisionWeights(1))
}

func TestDeepSupervisionLoss(t *testing.T) {
	target := ts.MustOnes([]int64{2, 1, 4, 4}, gotch.Float, gotch.CPU)
	logit := ts.MustZeros([]int64{2, 1, 4, 4}, gotch.Float, gotch.CPU)
	stacked := ts.MustStack([]ts.Tensor{*logit, *logit, *logit}, 1)

	single := metric.BCEWithLogitsLoss(logit, target).Float64Values()[0]
	total := metric.DeepSupervisionLoss(stacked, target, metric.BCEWithLogitsLoss).Float64Values()[0]

	// identical outputs: weights sum to one.
	assert.InDelta(t, single, total, 1e-6)
	// BCE of logit 0 against 1 is log 2.
	assert.InDelta(t, 0.6931, single, 1e-4)
}
