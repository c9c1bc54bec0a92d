package recording

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

const (
	filmstripTileHeight = 180
	filmstripPadding    = 8
	filmstripLabelSpace = 18
)

// renderFilmstrip lays up to count frames side by side as a single JPEG
// contact sheet with frame indices underneath each tile.
func renderFilmstrip(frames [][]byte, count int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to render")
	}
	if count > len(frames) {
		count = len(frames)
	}
	step := len(frames) / count

	tiles := make([]image.Image, 0, count)
	indices := make([]int, 0, count)
	for i := 0; i < count; i++ {
		idx := i * step
		img, err := jpeg.Decode(bytes.NewReader(frames[idx]))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", idx, err)
		}
		tiles = append(tiles, scaleToHeight(img, filmstripTileHeight))
		indices = append(indices, idx)
	}

	width := filmstripPadding
	for _, tile := range tiles {
		width += tile.Bounds().Dx() + filmstripPadding
	}
	height := filmstripTileHeight + filmstripLabelSpace + 2*filmstripPadding

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	x := filmstripPadding
	for i, tile := range tiles {
		dc.DrawImage(tile, x, filmstripPadding)

		dc.SetRGB(0.2, 0.2, 0.2)
		label := fmt.Sprintf("frame %d", indices[i])
		tw := float64(tile.Bounds().Dx())
		dc.DrawStringAnchored(label, float64(x)+tw/2, float64(filmstripPadding+filmstripTileHeight+filmstripLabelSpace/2), 0.5, 0.5)

		x += tile.Bounds().Dx() + filmstripPadding
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode filmstrip: %w", err)
	}
	return buf.Bytes(), nil
}

func scaleToHeight(img image.Image, height int) image.Image {
	b := img.Bounds()
	if b.Dy() == 0 {
		return img
	}
	width := b.Dx() * height / b.Dy()
	if width < 1 {
		width = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
