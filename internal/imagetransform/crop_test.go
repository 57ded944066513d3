package imagetransform

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// plainImage returns a uniform mid-gray image with no detectable contours.
func plainImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	return img
}

// withCornerBlock stamps a solid dark block of the given size into the
// image's top-left corner, simulating a watermark contour.
func withCornerBlock(img *image.RGBA, blockW, blockH int) *image.RGBA {
	for y := 0; y < blockH; y++ {
		for x := 0; x < blockW; x++ {
			img.Set(x, y, color.RGBA{10, 10, 10, 255})
		}
	}
	return img
}

func TestCrop_NoContours_UsesDefaultBand(t *testing.T) {
	img := plainImage(400, 400)
	out, err := Crop(encodeJPEG(t, img))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	// default 20px top + 20px bottom removed from a 400px-tall image
	assert.Equal(t, 400-2*defaultBand, decoded.Bounds().Dy())
}

func TestCrop_CornerContour_ExpandsTopBand(t *testing.T) {
	img := plainImage(400, 400)
	withCornerBlock(img, 60, 40)
	out, err := Crop(encodeJPEG(t, img))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	// the top band should grow to at least the block's height
	assert.LessOrEqual(t, decoded.Bounds().Dy(), 400-40-defaultBand+1)
}

func TestCrop_NeverRemovesMoreThanHalfHeightPerSide(t *testing.T) {
	img := plainImage(100, 40)
	withCornerBlock(img, 90, 35)
	out, err := Crop(encodeJPEG(t, img))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, decoded.Bounds().Dy(), 40/2)
}

func TestCrop_TinyImage_ReturnsOriginalUnchanged(t *testing.T) {
	// 2px tall: each band clamps to h/2 = 1px, so together they would
	// remove every row and Crop must hand back the input bytes.
	img := plainImage(10, 2)
	original := encodeJPEG(t, img)
	out, err := Crop(original)
	require.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestCornerBandHeight_ClampsToHalfHeight(t *testing.T) {
	boxes := []boundingBox{{minX: 0, minY: 0, maxX: 5, maxY: 95}}
	got := cornerBandHeight(boxes, 100, 100, 25, true)
	assert.Equal(t, 50, got)
}

func TestNearCorner_RespectsMargin(t *testing.T) {
	box := boundingBox{minX: 0, minY: 0, maxX: 5, maxY: 5}
	assert.True(t, nearCorner(box, 100, 100, 10, true, true))
	assert.False(t, nearCorner(box, 100, 100, 10, false, true))
}
