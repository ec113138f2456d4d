package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// TestPatternSensor encodes a synthetic JPEG on every Acquire.
// Each frame has a different hue so consecutive captures are distinguishable.
type TestPatternSensor struct {
	width   int
	height  int
	quality int

	mu    sync.Mutex
	frame int
}

// NewTestPatternSensor creates a synthetic sensor. Zero values fall back to 320x240 q75.
func NewTestPatternSensor(width, height, quality int) *TestPatternSensor {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 240
	}
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	return &TestPatternSensor{width: width, height: height, quality: quality}
}

func (s *TestPatternSensor) Acquire() (*Frame, error) {
	s.mu.Lock()
	n := s.frame
	s.frame++
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	shift := uint8(n * 37)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*255/s.width) + shift,
				G: uint8(y*255/s.height) + shift,
				B: shift,
				A: 0xff,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("%w: encode test pattern: %v", ErrSensorUnavailable, err)
	}
	return NewFrame(buf.Bytes(), nil), nil
}
