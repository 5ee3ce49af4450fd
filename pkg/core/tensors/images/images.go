// Package images provides several functions to transform images back and
// forth from tensors.
package images

import (
	"image"
	"image/color"
	"math"

	"github.com/gomlx/augment/pkg/core/shapes"
	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// ChannelsAxisConfig indicates if a tensor with an image has the channel axis
// coming last (last axis) or first (first axis after batch axis).
type ChannelsAxisConfig uint8

const (
	ChannelsFirst ChannelsAxisConfig = iota
	ChannelsLast
)

// String implements fmt.Stringer.
func (c ChannelsAxisConfig) String() string {
	switch c {
	case ChannelsFirst:
		return "ChannelsFirst"
	case ChannelsLast:
		return "ChannelsLast"
	}
	return "InvalidChannelsAxisConfig"
}

// GetChannelsAxis from a given image tensor and configuration. It assumes the
// leading axis is for the batch dimension. So it either returns 1 or
// `image.Rank()-1`.
func GetChannelsAxis(image shapes.HasShape, config ChannelsAxisConfig) int {
	switch config {
	case ChannelsFirst:
		return 1
	case ChannelsLast:
		return image.Shape().Rank() - 1
	default:
		klog.Errorf("GetChannelsAxis(image, %s): invalid ChannelsAxisConfig!?", config)
		return -1
	}
}

// GetSpatialAxes from a given image tensor and configuration. It assumes the
// leading axis is for the batch dimension.
//
// Example: if image has shape `[batch_dim, height, width, channels]`, it will
// return `[]int{1, 2}`.
func GetSpatialAxes(image shapes.HasShape, config ChannelsAxisConfig) (spatialAxes []int) {
	numSpatialDims := image.Shape().Rank() - 2
	if numSpatialDims <= 0 {
		return
	}
	first := 1
	if config == ChannelsFirst {
		first = 2
	} else if config != ChannelsLast {
		klog.Errorf("GetSpatialAxes(image, %v): invalid ChannelsAxisConfig!?", config)
		return
	}
	spatialAxes = make([]int, numSpatialDims)
	for ii := range spatialAxes {
		spatialAxes[ii] = first + ii
	}
	return
}

// ToTensorConfig holds the configuration returned by the ToTensor function. Once
// configured, use Single or Batch to actually convert.
type ToTensorConfig struct {
	channels int
	maxValue float64
	dtype    dtypes.DType
}

// ToTensor converts an image (or batch) to a tensor.
//
// It returns a configuration object that can be further configured. Once set, use Single or Batch
// methods to convert an image or a batch of images.
//
// Supported dtypes: Float32, Float64, Float16, Int32, Int64 and Uint8.
func ToTensor(dtype dtypes.DType) *ToTensorConfig {
	tt := &ToTensorConfig{
		channels: 3,
		maxValue: 1.0,
		dtype:    dtype,
	}
	if !dtype.IsFloat() {
		// Use 255 for integer types.
		tt.maxValue = 255.0
	}
	return tt
}

// WithAlpha configures ToTensorConfig object to include the alpha channel in the conversion,
// so the converted tensor will have 4 channels. The default is dropping the alpha channel.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) WithAlpha() *ToTensorConfig {
	tt.channels = 4
	return tt
}

// MaxValue sets the MaxValue of each channel. It defaults to 1.0 for float dtypes
// and 255 for integer types.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) MaxValue(v float64) *ToTensorConfig {
	tt.maxValue = v
	return tt
}

// DType returns the dtype of the tensors created.
func (tt *ToTensorConfig) DType() dtypes.DType { return tt.dtype }

// Channels returns the number of channels of the tensors created: 3 or 4 (if WithAlpha was set).
func (tt *ToTensorConfig) Channels() int { return tt.channels }

// Single converts the given img to a tensor, using the ToTensorConfig.
//
// It returns a 3D tensor, shaped as `[height, width, channels]`.
//
// It panics in case of error.
func (tt *ToTensorConfig) Single(img image.Image) (t *tensors.Tensor) {
	return toTensorImpl(tt, []image.Image{img}, false)
}

// Batch converts the given images to a tensor, using the ToTensorConfig.
//
// It returns a 4D tensor, shaped as `[batch_size, height, width, channels]`.
//
// It panics in case of error.
func (tt *ToTensorConfig) Batch(images []image.Image) (t *tensors.Tensor) {
	return toTensorImpl(tt, images, true)
}

func toTensorImpl(tt *ToTensorConfig, images []image.Image, batch bool) (t *tensors.Tensor) {
	if len(images) == 0 {
		exceptions.Panicf("images.ToTensor: no images given")
	}
	switch tt.dtype {
	case dtypes.Float32:
		t = toTensorGenericsImpl[float32](tt, images, batch)
	case dtypes.Float64:
		t = toTensorGenericsImpl[float64](tt, images, batch)
	case dtypes.Float16:
		t = toTensorGenericsImpl[float16.Float16](tt, images, batch)
	case dtypes.Int32:
		t = toTensorGenericsImpl[int32](tt, images, batch)
	case dtypes.Int64:
		t = toTensorGenericsImpl[int64](tt, images, batch)
	case dtypes.Uint8:
		t = toTensorGenericsImpl[uint8](tt, images, batch)
	default:
		exceptions.Panicf("images.ToTensor does not support dtype %s", tt.dtype)
	}
	return
}

// fromFloat64 converts a float64 value to T, rounding for integer types.
func fromFloat64[T tensors.Supported](v float64, isFloat bool) T {
	var zero T
	if _, ok := any(zero).(float16.Float16); ok {
		return any(float16.Fromfloat32(float32(v))).(T)
	}
	if !isFloat {
		v = math.Round(v)
	}
	switch any(zero).(type) {
	case float32:
		return any(float32(v)).(T)
	case float64:
		return any(v).(T)
	case int32:
		return any(int32(v)).(T)
	case int64:
		return any(int64(v)).(T)
	case uint8:
		return any(uint8(v)).(T)
	}
	return zero
}

// toFloat64 converts T to float64.
func toFloat64[T tensors.Supported](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case float16.Float16:
		return float64(x.Float32())
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	}
	return 0
}

func toTensorGenericsImpl[T tensors.Supported](tt *ToTensorConfig, images []image.Image, batch bool) (t *tensors.Tensor) {
	if len(images) > 1 && !batch {
		exceptions.Panicf("image.ToTensor in none-batch mode, but more than one image (%d) requested for conversion", len(images))
	}
	imgSize := images[0].Bounds().Size()
	if batch {
		t = tensors.FromShape(shapes.Make(tt.dtype, len(images), imgSize.Y, imgSize.X, tt.channels))
	} else {
		t = tensors.FromShape(shapes.Make(tt.dtype, imgSize.Y, imgSize.X, tt.channels))
	}
	isFloat := tt.dtype.IsFloat()
	scale := tt.maxValue / float64(0xFFFF) // Channels are read as 16 bits values.

	tensors.MutableFlatData(t, func(flat []T) {
		pos := 0 // Position in the flat slice.
		for imgIdx, img := range images {
			if !img.Bounds().Size().Eq(imgSize) {
				exceptions.Panicf(
					"image[%d] has size %s, but image[0] has size %s -- they must all be the same",
					imgIdx, img.Bounds().Size(), imgSize)
			}
			minPoint := img.Bounds().Min
			for y := 0; y < imgSize.Y; y++ {
				for x := 0; x < imgSize.X; x++ {
					c := nrgba64At(img, minPoint.X+x, minPoint.Y+y)
					channels := [4]uint16{c.R, c.G, c.B, c.A}
					for _, channel := range channels[:tt.channels] {
						flat[pos] = fromFloat64[T](float64(channel)*scale, isFloat)
						pos++
					}
				}
			}
		}
		if pos != t.Shape().Size() {
			exceptions.Panicf(
				"images.ToTensor failed to set the values for all pixels (%d written out of %d)",
				pos, t.Shape().Size())
		}
	})
	return
}

// nrgba64At returns the non-alpha-premultiplied color of the pixel at (x, y), so translucent pixels keep
// their color values. 8 bits NRGBA pixels are read exactly.
func nrgba64At(img image.Image, x, y int) color.NRGBA64 {
	if nrgba, ok := img.(*image.NRGBA); ok {
		c := nrgba.NRGBAAt(x, y)
		return color.NRGBA64{R: uint16(c.R) * 0x101, G: uint16(c.G) * 0x101, B: uint16(c.B) * 0x101, A: uint16(c.A) * 0x101}
	}
	return color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
}

// ToImageConfig holds the configuration returned by the ToImage function. Once
// configured, use Single or Batch to actually convert a tensor to image(s).
type ToImageConfig struct {
	maxValue float64
}

// ToImage returns a configuration that can be used to convert tensors to Images.
// Use Single or Batch to convert single images or batch of images at once.
//
// For now, it only supports `*image.NRGBA` image type. Values out of the `[0, maxValue]` range are clipped.
func ToImage() *ToImageConfig {
	return &ToImageConfig{}
}

// MaxValue sets the MaxValue of each channel. It defaults to 1.0 for float dtypes
// and 255 for integer types.
//
// It returns the ToImageConfig object, so configuration calls can be cascaded.
func (ti *ToImageConfig) MaxValue(v float64) *ToImageConfig {
	ti.maxValue = v
	return ti
}

// Single converts the given 3D tensor shaped as `[height, width, channels]`
// to an image, using the ToImageConfig.
//
// It panics in case of error.
func (ti *ToImageConfig) Single(t *tensors.Tensor) (img *image.NRGBA) {
	images := toImageImpl(ti, t)
	if len(images) > 0 {
		img = images[0]
	}
	return
}

// Batch converts the given 4D tensor shaped as `[batch_size, height, width, channels]`
// to a collection of images, using the ToImageConfig.
//
// It panics in case of error.
func (ti *ToImageConfig) Batch(t *tensors.Tensor) (images []*image.NRGBA) {
	return toImageImpl(ti, t)
}

func toImageImpl(ti *ToImageConfig, imagesTensor *tensors.Tensor) (images []*image.NRGBA) {
	var numImages, width, height, channels int
	dims := imagesTensor.Shape().Dimensions
	switch imagesTensor.Rank() {
	case 3:
		numImages, height, width, channels = 1, dims[0], dims[1], dims[2]
	case 4:
		numImages, height, width, channels = dims[0], dims[1], dims[2], dims[3]
	default:
		exceptions.Panicf(
			"invalid tensor shape %s for images.ToImage conversion, must be either rank-3 or rank-4",
			imagesTensor.Shape())
	}
	if channels != 1 && channels != 3 && channels != 4 {
		exceptions.Panicf(
			"images.ToImage invalid tensor shape %s, with %d channels: only images with 1, 3 or 4 channels are supported",
			imagesTensor.Shape(), channels)
	}
	maxValue := ti.maxValue
	if maxValue == 0 {
		if imagesTensor.DType().IsFloat() {
			maxValue = 1.0
		} else {
			maxValue = 255.0
		}
	}
	dtype := imagesTensor.DType()
	switch dtype {
	case dtypes.Float32:
		images = toImageGenericsImpl[float32](imagesTensor, numImages, height, width, channels, maxValue)
	case dtypes.Float64:
		images = toImageGenericsImpl[float64](imagesTensor, numImages, height, width, channels, maxValue)
	case dtypes.Float16:
		images = toImageGenericsImpl[float16.Float16](imagesTensor, numImages, height, width, channels, maxValue)
	case dtypes.Int32:
		images = toImageGenericsImpl[int32](imagesTensor, numImages, height, width, channels, maxValue)
	case dtypes.Int64:
		images = toImageGenericsImpl[int64](imagesTensor, numImages, height, width, channels, maxValue)
	case dtypes.Uint8:
		images = toImageGenericsImpl[uint8](imagesTensor, numImages, height, width, channels, maxValue)
	default:
		exceptions.Panicf("images.ToImage cannot convert tensor of unsupported dtype %s to Image", dtype)
	}
	return
}

func toImageGenericsImpl[T tensors.Supported](
	imagesTensor *tensors.Tensor, numImages, height, width, channels int, maxValue float64) (images []*image.NRGBA) {
	images = make([]*image.NRGBA, 0, numImages)
	tensorPos := 0
	toUint8 := func(v T) uint8 {
		scaled := math.Round(255 * (toFloat64(v) / maxValue))
		if math.IsNaN(scaled) {
			return 0
		}
		return uint8(max(0, min(255, scaled)))
	}
	tensors.ConstFlatData(imagesTensor, func(tensorData []T) {
		for imageIdx := 0; imageIdx < numImages; imageIdx++ {
			img := image.NewNRGBA(image.Rect(0, 0, width, height))
			for h := 0; h < height; h++ {
				for w := 0; w < width; w++ {
					pixPos := h*img.Stride + w*4
					if channels == 1 {
						// Grayscale: replicate the value on R, G and B.
						v := toUint8(tensorData[tensorPos])
						tensorPos++
						img.Pix[pixPos], img.Pix[pixPos+1], img.Pix[pixPos+2] = v, v, v
					} else {
						for d := 0; d < channels; d++ {
							img.Pix[pixPos+d] = toUint8(tensorData[tensorPos])
							tensorPos++
						}
					}
					if channels < 4 {
						img.Pix[pixPos+3] = uint8(255) // Alpha channel.
					}
				}
			}
			images = append(images, img)
		}
	})
	return
}
