package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderWidth  = 800
	placeholderHeight = 600
	placeholderWrap   = 105 // characters per line at 7px glyphs
)

var placeholderBackground = color.RGBA{240, 240, 240, 255}

// WritePlaceholder writes a light-grey JPEG with text near the top-left
// corner. If rendering fails a minimal image is written instead.
func WritePlaceholder(path, text string) error {
	data, err := renderPlaceholder(text)
	if err != nil {
		data, err = minimalJPEG()
		if err != nil {
			return fmt.Errorf("placeholder: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("placeholder: %w", err)
	}
	return nil
}

func renderPlaceholder(text string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{40, 40, 40, 255}),
		Face: face,
	}
	lineHeight := face.Height + 3
	for i, line := range wrapText(text, placeholderWrap) {
		y := 20 + face.Ascent + i*lineHeight
		if y > placeholderHeight-10 {
			break
		}
		d.Dot = fixed.P(20, y)
		d.DrawString(line)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalJPEG() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: 240})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapText splits text on newlines and then hard-wraps each line at width runes.
func wrapText(text string, width int) []string {
	var lines []string
	for _, para := range bytes.Split([]byte(text), []byte("\n")) {
		r := []rune(string(para))
		if len(r) == 0 {
			lines = append(lines, "")
			continue
		}
		for len(r) > width {
			lines = append(lines, string(r[:width]))
			r = r[width:]
		}
		lines = append(lines, string(r))
	}
	return lines
}
