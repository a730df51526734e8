package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dynunet/base"
	"github.com/sugarme/dynunet/dynunet"
	"github.com/sugarme/dynunet/metric"
)

func parseFilters(str string) ([]int64, error) {
	if strings.TrimSpace(str) == "" {
		return nil, nil
	}

	var filters []int64
	for _, f := range strings.Split(str, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid filters %q", str)
		}
		filters = append(filters, v)
	}
	return filters, nil
}

// buildConfig creates the network config from flags.
func buildConfig() (*dynunet.Config, error) {
	config := dynunet.DefaultConfig()
	config.SpatialDims = SpatialDims
	config.InChannels = InChannels
	config.ClsOutChannels = ClsOutChannels
	config.SegOutChannels = SegOutChannels
	config.Dropout = Dropout
	config.DeepSuprNum = DeepSuprNum
	config.ResBlock = ResBlock
	config.TransBias = TransBias
	config.PoolFmap = PoolFmap

	var err error
	if config.KernelSize, err = base.ParseSizes(KernelStr); err != nil {
		return nil, errors.Wrap(err, "kernels")
	}
	if config.Strides, err = base.ParseSizes(StrideStr); err != nil {
		return nil, errors.Wrap(err, "strides")
	}
	if config.OutputPaddings, err = base.ParseSizes(OutPaddingStr); err != nil {
		return nil, errors.Wrap(err, "output paddings")
	}
	if config.Filters, err = parseFilters(FilterStr); err != nil {
		return nil, err
	}
	if config.Norm, err = base.ParseNorm(NormStr); err != nil {
		return nil, err
	}
	if config.Act, err = base.ParseAct(ActStr); err != nil {
		return nil, err
	}
	if config.PoolType, err = base.ParsePool(PoolStr); err != nil {
		return nil, err
	}

	return config, nil
}

// newModel builds the network under vs and loads weights from ModelPath
// when the file exists.
func newModel(vs *nn.VarStore) *dynunet.DynUNet {
	config, err := buildConfig()
	if err != nil {
		log.Fatal(err)
	}

	net, err := dynunet.New(vs.Root(), config)
	if err != nil {
		log.Fatal(err)
	}

	if _, err := os.Stat(ModelPath); err == nil {
		missings, err := vs.LoadPartial(ModelPath)
		if err != nil {
			log.Fatal(err)
		}
		if len(missings) > 0 {
			fmt.Printf("Missing variables: %v\n", missings)
		}
		fmt.Printf("Loaded weights from %q\n", ModelPath)
	}

	return net
}

// runCheckModel prints the network layout and runs one evaluation and one
// training pass on random input.
func runCheckModel() {
	vs := nn.NewVarStore(Device)
	net := newModel(vs)

	printVars(vs)

	fmt.Printf("Filters: %v\n", net.Filters())
	fmt.Printf("Depth: %v - deep supervision levels: %v\n", net.Depth(), net.HeadLevels())
	fmt.Printf("Min input size: %v\n", net.MinInputSize())

	spatial := make([]int64, SpatialDims)
	for i := range spatial {
		spatial[i] = ImageSize
	}
	spatial = net.ValidInputSize(spatial)
	shape := append([]int64{2, InChannels}, spatial...)

	x := ts.MustRandn(shape, gotch.Float, Device)
	ts.NoGrad(func() {
		clsOut, segOut := net.ForwardOutputs(x, false)
		fmt.Printf("input: %v - cls: %v - seg: %v\n", shape, clsOut.MustSize(), segOut.MustSize())
		clsOut.MustDrop()
		segOut.MustDrop()
	})

	clsOut, segOut := net.ForwardOutputs(x, true)
	fmt.Printf("training seg output (primary + %v heads): %v\n", DeepSuprNum, segOut.MustSize())
	clsOut.MustDrop()
	segOut.MustDrop()
	x.MustDrop()
}

// runTrain trains the segmentation path on images from DataPath and masks
// from MaskPath with deep supervision, then saves weights to ModelPath.
func runTrain() {
	if SpatialDims != 2 || SegOutChannels != 1 {
		log.Fatalf("Training from image files needs -dims=2 and -seg-channels=1\n")
	}

	vs := nn.NewVarStore(Device)
	net := newModel(vs)

	files, err := listImages(DataPath)
	if err != nil {
		log.Fatal(err)
	}

	opt, err := nn.DefaultAdamConfig().Build(vs, LR)
	if err != nil {
		log.Fatal(err)
	}

	for epoch := 0; epoch < Epochs; epoch++ {
		var lossSum float64
		for i, f := range files {
			input, target, err := loadSample(net, f)
			if err != nil {
				log.Fatal(err)
			}

			clsOut, segOut := net.ForwardOutputs(input, true)
			clsOut.MustDrop()
			input.MustDrop()

			loss := metric.DeepSupervisionLoss(segOut, target, metric.BCEWithLogitsLoss)
			segOut.MustDrop()
			target.MustDrop()

			opt.BackwardStep(loss)
			l := loss.Float64Values()[0]
			loss.MustDrop()
			lossSum += l

			fmt.Printf("Epoch %02d - %03d/%03d\t Loss: %0.4f\n", epoch, i+1, len(files), l)
		}
		fmt.Printf("Epoch %02d done. Mean loss: %0.4f\n", epoch, lossSum/float64(len(files)))
	}

	if err := os.MkdirAll(dirOf(ModelPath), 0755); err != nil {
		log.Fatal(err)
	}
	if err := vs.Save(ModelPath); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Saved weights to %q\n", ModelPath)
}

// runInfer predicts a class and a mask for every image in DataPath, writes
// mask overlays and a report to OutPath.
func runInfer() {
	if SpatialDims != 2 {
		log.Fatalf("Inference on image files needs -dims=2\n")
	}

	vs := nn.NewVarStore(Device)
	net := newModel(vs)

	files, err := listImages(DataPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(OutPath, 0755); err != nil {
		log.Fatal(err)
	}

	var preds []Prediction
	for _, f := range files {
		pred, err := predict(net, f)
		if err != nil {
			log.Fatal(err)
		}
		preds = append(preds, *pred)
		fmt.Printf("%v\t class: %v (%0.4f)\t mask: %0.2f%%\n", pred.Image, pred.Class, pred.Prob, pred.MaskRatio*100)
	}

	if err := writeReport(preds, OutPath); err != nil {
		log.Fatal(err)
	}
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("%v \t\t %v\n", n, vars[n].MustSize())
	}
}
