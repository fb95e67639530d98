package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const jpegQuality = 85

// CropRegion selects the part of the frame to keep. Width or Height of 0
// means the full dimension.
type CropRegion struct {
	Top    int
	Left   int
	Width  int
	Height int
}

// Processor applies the configured crop and stamps the capture time onto
// the frame. Pure transform: input bytes in, JPEG bytes out.
type Processor struct {
	crop CropRegion
}

func NewProcessor(crop CropRegion) *Processor {
	return &Processor{crop: crop}
}

func (p *Processor) Process(raw []byte, ts time.Time) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	rect := p.cropRect(src.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), src, rect.Min, draw.Src)

	annotate(out, ts.Format("2006-01-02 15:04:05 MST"))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Processor) cropRect(bounds image.Rectangle) image.Rectangle {
	width := p.crop.Width
	if width == 0 {
		width = bounds.Dx() - p.crop.Left
	}
	height := p.crop.Height
	if height == 0 {
		height = bounds.Dy() - p.crop.Top
	}
	rect := image.Rect(
		bounds.Min.X+p.crop.Left,
		bounds.Min.Y+p.crop.Top,
		bounds.Min.X+p.crop.Left+width,
		bounds.Min.Y+p.crop.Top+height,
	)
	return rect.Intersect(bounds)
}

// annotate draws the timestamp on a dark strip in the bottom-left corner.
func annotate(img *image.RGBA, label string) {
	face := basicfont.Face7x13
	bounds := img.Bounds()

	textWidth := font.MeasureString(face, label).Ceil()
	stripHeight := face.Height + 6
	strip := image.Rect(
		bounds.Min.X,
		bounds.Max.Y-stripHeight,
		bounds.Min.X+textWidth+12,
		bounds.Max.Y,
	).Intersect(bounds)
	draw.Draw(img, strip, &image.Uniform{color.RGBA{0, 0, 0, 200}}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot: fixed.P(
			bounds.Min.X+6,
			bounds.Max.Y-5,
		),
	}
	d.DrawString(label)
}
