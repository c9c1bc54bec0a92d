package recording

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test frame: %v", err)
	}
	return buf.Bytes()
}

func TestRenderFilmstrip(t *testing.T) {
	frames := make([][]byte, 10)
	for i := range frames {
		frames[i] = solidJPEG(t, 320, 240, color.RGBA{R: uint8(i * 20), A: 255})
	}

	data, err := renderFilmstrip(frames, 5)
	if err != nil {
		t.Fatalf("renderFilmstrip failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("filmstrip is not a valid JPEG: %v", err)
	}
	// Five 240-wide tiles (320x240 scaled to height 180) plus padding.
	wantWidth := filmstripPadding + 5*(240+filmstripPadding)
	if img.Bounds().Dx() != wantWidth {
		t.Errorf("unexpected filmstrip width: got %d, want %d", img.Bounds().Dx(), wantWidth)
	}
	wantHeight := filmstripTileHeight + filmstripLabelSpace + 2*filmstripPadding
	if img.Bounds().Dy() != wantHeight {
		t.Errorf("unexpected filmstrip height: got %d, want %d", img.Bounds().Dy(), wantHeight)
	}
}

func TestRenderFilmstripFewFrames(t *testing.T) {
	frames := [][]byte{solidJPEG(t, 100, 100, color.White)}
	data, err := renderFilmstrip(frames, 5)
	if err != nil {
		t.Fatalf("renderFilmstrip failed: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("invalid filmstrip: %v", err)
	}
}

func TestRenderFilmstripEmpty(t *testing.T) {
	if _, err := renderFilmstrip(nil, 5); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestRenderFilmstripBadFrame(t *testing.T) {
	if _, err := renderFilmstrip([][]byte{[]byte("not a jpeg")}, 1); err == nil {
		t.Error("expected decode error")
	}
}
