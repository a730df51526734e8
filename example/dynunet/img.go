package main

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"

	"github.com/sugarme/dynunet/dynunet"
)

// readImage reads image from file.
func readImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png", ".PNG":
		return png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		return jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		return tiff.Decode(f)
	default:
		err = fmt.Errorf("Unsupported image format: %v\n", ext)
		return nil, err
	}
}

// listImages returns the image files of dir sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("No image found in %q", dir)
	}
	return files, nil
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

// imageToTensor converts img to a [1, channels, H, W] float tensor in [0, 1].
// A single channel takes the image luminosity.
func imageToTensor(img image.Image, channels int64) *ts.Tensor {
	if channels == 1 {
		img = imaging.Grayscale(img)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, int(channels)*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := []uint32{r, g, bl}
			for c := 0; c < int(channels); c++ {
				data[c*plane+y*w+x] = float32(px[c%3]) / 0xffff
			}
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, channels, int64(h), int64(w)}, true)
}

// maskToTensor converts a mask image to a binary [1, 1, H, W] tensor.
func maskToTensor(mask image.Image) *ts.Tensor {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray := color.GrayModel.Convert(mask.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			if gray.Y > 127 {
				data[y*w+x] = 1
			}
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, 1, int64(h), int64(w)}, true)
}

// loadSample loads an image and its mask resized to sizes the network
// accepts and outputs.
func loadSample(net *dynunet.DynUNet, file string) (input, target *ts.Tensor, err error) {
	img, err := readImage(file)
	if err != nil {
		return nil, nil, err
	}
	mask, err := readImage(filepath.Join(MaskPath, filepath.Base(file)))
	if err != nil {
		return nil, nil, err
	}

	b := img.Bounds()
	inSize := net.ValidInputSize([]int64{int64(b.Dy()), int64(b.Dx())})
	outSize := net.OutputSize(inSize)

	resized := imaging.Resize(img, int(inSize[1]), int(inSize[0]), imaging.Lanczos)
	maskResized := resize.Resize(uint(outSize[1]), uint(outSize[0]), mask, resize.NearestNeighbor)

	input = imageToTensor(resized, InChannels).MustTo(Device, true)
	target = maskToTensor(maskResized).MustTo(Device, true)

	return input, target, nil
}

// probToMask thresholds a [H, W] probability tensor at 0.5.
func probToMask(prob *ts.Tensor) (*image.Gray, float64) {
	size := prob.MustSize()
	h, w := int(size[0]), int(size[1])
	vals := prob.Float64Values()

	mask := image.NewGray(image.Rect(0, 0, w, h))
	var count int
	for i, v := range vals {
		if v > 0.5 {
			mask.Pix[i] = 255
			count++
		}
	}

	return mask, float64(count) / float64(len(vals))
}

// predict runs the network on one image and writes its mask overlay to
// OutPath.
func predict(net *dynunet.DynUNet, file string) (*Prediction, error) {
	img, err := readImage(file)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	inSize := net.ValidInputSize([]int64{int64(b.Dy()), int64(b.Dx())})
	resized := imaging.Resize(img, int(inSize[1]), int(inSize[0]), imaging.Lanczos)
	x := imageToTensor(resized, InChannels).MustTo(Device, true)

	var probs []float64
	var prob *ts.Tensor
	ts.NoGrad(func() {
		clsOut, segOut := net.ForwardOutputs(x, false)
		probs = clsOut.MustSoftmax(-1, gotch.Float, true).MustTo(gotch.CPU, true).Float64Values()
		// first sample, first channel
		prob = segOut.MustSigmoid(true).MustSelect(1, 0, true).MustSelect(0, 0, true).MustTo(gotch.CPU, true)
	})
	x.MustDrop()

	mask, ratio := probToMask(prob)
	prob.MustDrop()

	class := 0
	for i, p := range probs {
		if p > probs[class] {
			class = i
		}
	}

	// back to the source resolution
	fullMask := resize.Resize(uint(b.Dx()), uint(b.Dy()), mask, resize.NearestNeighbor)

	name := filepath.Base(file)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if err := overlay(img, fullMask, filepath.Join(OutPath, name+"-mask.png")); err != nil {
		return nil, err
	}

	return &Prediction{
		Image:     filepath.Base(file),
		Class:     class,
		Prob:      probs[class],
		MaskRatio: ratio,
	}, nil
}

// overlay draws mask over img and saves the result as png.
func overlay(img, mask image.Image, out string) error {
	b := img.Bounds()
	rec := image.Rect(0, 0, b.Dx(), b.Dy())
	dstImg := image.NewRGBA(rec)
	draw.Draw(dstImg, rec, img, b.Min, draw.Src)

	// 25% opacity where the mask is set
	maskAlpha := image.NewAlpha(rec)
	mb := mask.Bounds()
	for y := 0; y < rec.Dy(); y++ {
		for x := 0; x < rec.Dx(); x++ {
			gray := color.GrayModel.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray)
			if gray.Y > 127 {
				maskAlpha.SetAlpha(x, y, color.Alpha{64})
			}
		}
	}
	red := image.NewUniform(color.RGBA{255, 0, 0, 255})
	draw.DrawMask(dstImg, rec, red, image.Point{}, maskAlpha, image.Point{}, draw.Over)

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, dstImg)
}
