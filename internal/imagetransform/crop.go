// Package imagetransform is the watermark remover described in §4.C: a pure
// function that detects watermark contours in the four image corners and
// crops the bands they occupy. Grounded on the disintegration/imaging usage
// in the teacher's old imaging package, generalized from the teacher's
// resize/crop pipeline to contour-driven cropping (no libvips, no cgo).
package imagetransform

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

const (
	minContourArea = 20
	maxContourArea = 3000
	defaultBand    = 20 // px, used when no corner contour is found
)

// Crop removes the watermark bands from the top and bottom of imageBytes and
// returns the result re-encoded as JPEG. If cropping would empty the image
// it returns imageBytes unchanged (§4.C).
func Crop(imageBytes []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(imageBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("imagetransform: decode: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return imageBytes, nil
	}

	gray := toGray(img)
	margin := h / 4
	if w < h {
		margin = w / 4
	}

	boxes := fixedThresholdSweep(gray)
	if len(boxes) == 0 {
		boxes = adaptiveThreshold(gray, 11, 2)
	}

	topCrop := cornerBandHeight(boxes, w, h, margin, true)
	bottomCrop := cornerBandHeight(boxes, w, h, margin, false)

	if topCrop+bottomCrop >= h {
		return imageBytes, nil
	}

	cropped := imaging.Crop(img, image.Rect(0, topCrop, w, h-bottomCrop))
	if cropped.Bounds().Dx() == 0 || cropped.Bounds().Dy() == 0 {
		return imageBytes, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("imagetransform: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// boundingBox is an axis-aligned contour bounding box in image pixel space,
// inclusive of both endpoints.
type boundingBox struct {
	minX, minY, maxX, maxY int
}

func (b boundingBox) width() int  { return b.maxX - b.minX + 1 }
func (b boundingBox) height() int { return b.maxY - b.minY + 1 }
func (b boundingBox) area() int   { return b.width() * b.height() }

// toGray converts img to an 8-bit grayscale buffer accessed as a flat
// row-major slice, matching the corner-detection pass's access pattern.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// fixedThresholdSweep implements §4.C's first pass: for each threshold in
// [100, 250] step 10, binary-inverse the image (pixels darker than the
// threshold become foreground) and keep connected components whose area
// falls in [20, 3000].
func fixedThresholdSweep(gray *image.Gray) []boundingBox {
	var found []boundingBox
	for t := 100; t <= 250; t += 10 {
		mask := thresholdInverse(gray, uint8(t))
		for _, box := range connectedComponents(mask) {
			if box.area() >= minContourArea && box.area() <= maxContourArea {
				found = append(found, box)
			}
		}
	}
	return orderByAreaDesc(found)
}

// adaptiveThreshold implements §4.C's fallback pass: a pixel is foreground
// when it sits more than C below the mean of its blockSize x blockSize
// neighborhood (the pure-Go stand-in for OpenCV's adaptive Gaussian
// threshold — a box-mean approximates the Gaussian-weighted one closely
// enough for watermark-corner detection).
func adaptiveThreshold(gray *image.Gray, blockSize, c int) []boundingBox {
	mask := adaptiveMask(gray, blockSize, c)
	var found []boundingBox
	for _, box := range connectedComponents(mask) {
		if box.area() >= minContourArea && box.area() <= maxContourArea {
			found = append(found, box)
		}
	}
	return orderByAreaDesc(found)
}

func thresholdInverse(gray *image.Gray, t uint8) [][]bool {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([][]bool, h)
	for y := 0; y < h; y++ {
		mask[y] = make([]bool, w)
		for x := 0; x < w; x++ {
			mask[y][x] = gray.GrayAt(x, y).Y < t
		}
	}
	return mask
}

func adaptiveMask(gray *image.Gray, blockSize, c int) [][]bool {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	half := blockSize / 2

	// integral image for O(1) box-mean lookups
	integral := make([][]int, h+1)
	for y := range integral {
		integral[y] = make([]int, w+1)
	}
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(gray.GrayAt(x, y).Y)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	boxSum := func(x0, y0, x1, y1 int) int {
		if x0 < 0 {
			x0 = 0
		}
		if y0 < 0 {
			y0 = 0
		}
		if x1 >= w {
			x1 = w - 1
		}
		if y1 >= h {
			y1 = h - 1
		}
		return integral[y1+1][x1+1] - integral[y0][x1+1] - integral[y1+1][x0] + integral[y0][x0]
	}

	mask := make([][]bool, h)
	for y := 0; y < h; y++ {
		mask[y] = make([]bool, w)
		for x := 0; x < w; x++ {
			x0, y0, x1, y1 := x-half, y-half, x+half, y+half
			if x0 < 0 {
				x0 = 0
			}
			if y0 < 0 {
				y0 = 0
			}
			if x1 >= w {
				x1 = w - 1
			}
			if y1 >= h {
				y1 = h - 1
			}
			count := (y1 - y0 + 1) * (x1 - x0 + 1)
			sum := boxSum(x0, y0, x1, y1)
			mean := sum / count
			mask[y][x] = int(gray.GrayAt(x, y).Y) < mean-c
		}
	}
	return mask
}

// connectedComponents labels 8-connected foreground regions of mask and
// returns their bounding boxes, the pure-Go substitute for OpenCV's
// findContours.
func connectedComponents(mask [][]bool) []boundingBox {
	h := len(mask)
	if h == 0 {
		return nil
	}
	w := len(mask[0])
	visited := make([][]bool, h)
	for y := range visited {
		visited[y] = make([]bool, w)
	}

	var boxes []boundingBox
	type point struct{ x, y int }

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y][x] || visited[y][x] {
				continue
			}
			box := boundingBox{minX: x, minY: y, maxX: x, maxY: y}
			queue := []point{{x, y}}
			visited[y][x] = true
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				if p.x < box.minX {
					box.minX = p.x
				}
				if p.x > box.maxX {
					box.maxX = p.x
				}
				if p.y < box.minY {
					box.minY = p.y
				}
				if p.y > box.maxY {
					box.maxY = p.y
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := p.x+dx, p.y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						if mask[ny][nx] && !visited[ny][nx] {
							visited[ny][nx] = true
							queue = append(queue, point{nx, ny})
						}
					}
				}
			}
			boxes = append(boxes, box)
		}
	}
	return boxes
}

func orderByAreaDesc(boxes []boundingBox) []boundingBox {
	for i := 1; i < len(boxes); i++ {
		for j := i; j > 0 && boxes[j].area() > boxes[j-1].area(); j-- {
			boxes[j], boxes[j-1] = boxes[j-1], boxes[j]
		}
	}
	return boxes
}

// nearCorner reports whether box lies within margin of the given image
// corner, per §4.C ("bounding box lies within a margin of min(h,w)/4 from
// the relevant corner").
func nearCorner(box boundingBox, w, h, margin int, left, top bool) bool {
	xOK := box.minX <= margin
	if !left {
		xOK = (w - 1 - box.maxX) <= margin
	}
	yOK := box.minY <= margin
	if !top {
		yOK = (h - 1 - box.maxY) <= margin
	}
	return xOK && yOK
}

// cornerBandHeight computes the top or bottom crop height: the max height of
// any bounding box found in the relevant pair of corners, defaultBand when
// no box is found there, clamped to h/2 (§4.C).
func cornerBandHeight(boxes []boundingBox, w, h, margin int, top bool) int {
	best, found := 0, false
	for _, box := range boxes {
		if nearCorner(box, w, h, margin, true, top) || nearCorner(box, w, h, margin, false, top) {
			found = true
			if box.height() > best {
				best = box.height()
			}
		}
	}
	if !found {
		best = defaultBand
	}
	if best > h/2 {
		best = h / 2
	}
	return best
}
