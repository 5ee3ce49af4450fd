package images

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/gomlx/augment/pkg/core/shapes"
	"github.com/gomlx/augment/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestGetSpatialAxes(t *testing.T) {
	s := shapes.Make(dtypes.Float32, 2, 3, 4, 5)
	assert.Equal(t, []int{1, 2}, GetSpatialAxes(s, ChannelsLast))
	assert.Equal(t, []int{2, 3}, GetSpatialAxes(s, ChannelsFirst))
	assert.Equal(t, 3, GetChannelsAxis(s, ChannelsLast))
	assert.Equal(t, 1, GetChannelsAxis(s, ChannelsFirst))
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{
		1, 1, 1, 255,
		3, 3, 3, 255,
		5, 5, 5, 255,
		10, 10, 10, 255,
		30, 30, 30, 255,
		50, 50, 50, 255})
	return img
}

func testTensorToFromImageImpl[T tensors.Supported](t *testing.T, img *image.NRGBA) {
	dtype := tensors.DTypeOf[T]()
	tensor := ToTensor(dtype).WithAlpha().Single(img)
	require.NoError(t, tensor.Shape().Check(dtype, 2, 3, 4))
	convertedImg := ToImage().Single(tensor)
	require.Equal(t, img.Bounds(), convertedImg.Bounds())
	for y := range 2 {
		for x := range 3 {
			require.Equal(t, img.At(x, y), convertedImg.At(x, y), "dtype=%s, x=%d, y=%d", dtype, x, y)
		}
	}
}

func TestTensorToFromImage(t *testing.T) {
	img := testImage()
	testTensorToFromImageImpl[float32](t, img)
	testTensorToFromImageImpl[float64](t, img)
	testTensorToFromImageImpl[int32](t, img)
	testTensorToFromImageImpl[int64](t, img)
	testTensorToFromImageImpl[uint8](t, img)
	testTensorToFromImageImpl[float16.Float16](t, img)
}

func TestTranslucentToFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{
		200, 100, 50, 128,
		255, 255, 255, 1,
		10, 20, 30, 0,
		0, 0, 0, 255,
		7, 77, 177, 200,
		90, 60, 30, 64})
	testTensorToFromImageImpl[float32](t, img)
	testTensorToFromImageImpl[float64](t, img)
	testTensorToFromImageImpl[int32](t, img)
	testTensorToFromImageImpl[uint8](t, img)

	// Colors are not darkened by the alpha.
	flat := tensors.CopyFlatData[float32](ToTensor(dtypes.Float32).WithAlpha().MaxValue(255).Single(img))
	assert.InDeltaSlice(t, []float32{200, 100, 50, 128}, flat[:4], 1e-3)

	// Alpha-premultiplied images are converted to non-premultiplied values.
	premultiplied := image.NewRGBA(image.Rect(0, 0, 1, 1))
	premultiplied.SetRGBA(0, 0, color.RGBA{R: 100, G: 50, B: 25, A: 128})
	flat = tensors.CopyFlatData[float32](ToTensor(dtypes.Float32).WithAlpha().MaxValue(255).Single(premultiplied))
	assert.InDeltaSlice(t, []float32{199.2, 99.6, 49.8, 128}, flat, 0.5)
}

func TestToTensorValues(t *testing.T) {
	img := testImage()
	tensor := ToTensor(dtypes.Float32).MaxValue(255).Single(img)
	require.NoError(t, tensor.Shape().Check(dtypes.Float32, 2, 3, 3))
	flat := tensors.CopyFlatData[float32](tensor)
	assert.InDelta(t, 1.0, flat[0], 1e-4)
	assert.InDelta(t, 50.0, flat[len(flat)-1], 1e-4)

	batch := ToTensor(dtypes.Uint8).Batch([]image.Image{img, img})
	require.NoError(t, batch.Shape().Check(dtypes.Uint8, 2, 2, 3, 3))
	require.Len(t, ToImage().Batch(batch), 2)

	other := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	require.Panics(t, func() { ToTensor(dtypes.Float32).Batch([]image.Image{img, other}) })
}

func TestToImageClipsAndGrayscale(t *testing.T) {
	tensor := tensors.FromFlatDataAndDimensions([]float32{-0.5, 0.5, 2.0}, 1, 3, 1)
	img := ToImage().Single(tensor)
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 0, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.NRGBAAt(2, 0))

	nan := float32(math.NaN())
	tensor = tensors.FromFlatDataAndDimensions([]float32{nan, 0.5, 1, nan}, 1, 1, 4)
	assert.Equal(t, color.NRGBA{R: 0, G: 128, B: 255, A: 0}, ToImage().Single(tensor).NRGBAAt(0, 0))
}
