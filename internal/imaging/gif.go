package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
)

// frameDelay is the per-frame delay in hundredths of a second.
const frameDelay = 75

// BuildGIF assembles processed frames into an animated GIF, in order.
func BuildGIF(frames [][]byte) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to animate")
	}

	anim := &gif.GIF{}
	for i, frame := range frames {
		src, _, err := image.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		paletted := image.NewPaletted(src.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, src.Bounds(), src, image.Point{})
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, frameDelay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
