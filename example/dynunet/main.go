package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch"
)

// flag variables
var (
	DataPath  string
	MaskPath  string
	OutPath   string
	ModelPath string
	Cuda      bool
	task      string
	Device    gotch.Device
)

// network settings
var (
	SpatialDims    int64
	InChannels     int64
	ClsOutChannels int64
	SegOutChannels int64
	KernelStr      string // e.g. "3,3,3,3"
	StrideStr      string // e.g. "1,2,2,2"
	OutPaddingStr  string // e.g. "1,1,1"
	FilterStr      string // e.g. "32,64,128,256"; derived when empty
	NormStr        string
	ActStr         string
	PoolStr        string
	PoolFmap       int64
	Dropout        float64
	DeepSuprNum    int
	ResBlock       bool
	TransBias      bool
)

// hyperparameters
var (
	LR        float64 // learning rate
	Epochs    int
	ImageSize int64 // side of the random input for the 'model' task
)

func init() {
	flag.StringVar(&DataPath, "input", "./input/image", "specify input image directory")
	flag.StringVar(&MaskPath, "mask", "./input/mask", "specify mask directory, files named as their image")
	flag.StringVar(&OutPath, "output", "./output", "specify output directory")
	flag.StringVar(&ModelPath, "model", "./model/dynunet.ot", "specify full path to model weight '.ot' file.")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.StringVar(&task, "task", "model", "specify task to run: model, train or infer")

	flag.Int64Var(&SpatialDims, "dims", 2, "specify number of spatial dimensions (2 or 3)")
	flag.Int64Var(&InChannels, "in-channels", 1, "specify number of input channels (1: grayscale, 3: RGB)")
	flag.Int64Var(&ClsOutChannels, "cls-channels", 2, "specify number of classes")
	flag.Int64Var(&SegOutChannels, "seg-channels", 1, "specify number of segmentation channels")
	flag.StringVar(&KernelStr, "kernels", "3,3,3,3,3", "specify kernel size of each stage, e.g. '3,1x3x3'")
	flag.StringVar(&StrideStr, "strides", "1,2,2,2,2", "specify stride of each stage")
	flag.StringVar(&OutPaddingStr, "output-paddings", "1,1,1,1", "specify output padding of each upsample stage")
	flag.StringVar(&FilterStr, "filters", "", "specify channels of each stage. Derived when empty")
	flag.StringVar(&NormStr, "norm", "instance", "specify normalization: instance, batch or group")
	flag.StringVar(&ActStr, "act", "leakyrelu", "specify activation: relu, leakyrelu, tanh, sigmoid or identity")
	flag.StringVar(&PoolStr, "pool", "max", "specify classification pooling: max or avg")
	flag.Int64Var(&PoolFmap, "pool-fmap", 2, "specify pooled feature map size per axis")
	flag.Float64Var(&Dropout, "dropout", 0, "specify dropout probability")
	flag.IntVar(&DeepSuprNum, "deep-supr", 1, "specify number of deep supervision heads")
	flag.BoolVar(&ResBlock, "res-block", false, "specify whether using residual conv blocks")
	flag.BoolVar(&TransBias, "trans-bias", false, "specify whether transposed convs have a bias")

	flag.Float64Var(&LR, "lr", 0.001, "specify learning rate")
	flag.IntVar(&Epochs, "epochs", 1, "specify number of epochs")
	flag.Int64Var(&ImageSize, "size", 64, "specify image size of the 'model' task")
}

func main() {
	flag.Parse()

	DataPath = absPath(DataPath)
	MaskPath = absPath(MaskPath)
	OutPath = absPath(OutPath)
	ModelPath = absPath(ModelPath)

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	switch task {
	case "model":
		runCheckModel()
	case "train":
		runTrain()
	case "infer":
		runInfer()
	default:
		err := fmt.Errorf("Unknown 'task' name. Please specify valid 'task' flag to run.\n")
		panic(err)
	}
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
