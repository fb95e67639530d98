package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestProcessNoCropKeepsDimensions(t *testing.T) {
	p := NewProcessor(CropRegion{})
	out, err := p.Process(encodeJPEG(t, 120, 80), time.Now())
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 120, w)
	assert.Equal(t, 80, h)
}

func TestProcessCrops(t *testing.T) {
	p := NewProcessor(CropRegion{Top: 10, Left: 20, Width: 50, Height: 40})
	out, err := p.Process(encodeJPEG(t, 120, 80), time.Now())
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 50, w)
	assert.Equal(t, 40, h)
}

func TestProcessZeroSizeMeansFullDimension(t *testing.T) {
	p := NewProcessor(CropRegion{Top: 10, Left: 20})
	out, err := p.Process(encodeJPEG(t, 120, 80), time.Now())
	require.NoError(t, err)

	w, h := decodeSize(t, out)
	assert.Equal(t, 100, w)
	assert.Equal(t, 70, h)
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewProcessor(CropRegion{})
	_, err := p.Process([]byte("not an image"), time.Now())
	assert.Error(t, err)
}

func TestBuildGIF(t *testing.T) {
	frames := [][]byte{
		encodeJPEG(t, 60, 40),
		encodeJPEG(t, 60, 40),
		encodeJPEG(t, 60, 40),
	}

	blob, err := BuildGIF(frames)
	require.NoError(t, err)

	anim, err := gif.DecodeAll(bytes.NewReader(blob))
	require.NoError(t, err)
	assert.Len(t, anim.Image, 3)
}

func TestBuildGIFNoFrames(t *testing.T) {
	_, err := BuildGIF(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no frames")
}
