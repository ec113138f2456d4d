package camera

import "errors"

// ErrSensorUnavailable is returned when the sensor could not produce a usable frame.
var ErrSensorUnavailable = errors.New("camera: sensor unavailable")

// Sensor is the high-level interface used by the capture workflow.
// It represents an abstract image sensor, regardless of how it's driven
// (CSI via a capture tool, a synthetic source, etc.).
type Sensor interface {
	// Acquire blocks until one compressed frame is available.
	// The caller owns the returned frame until it calls Release.
	Acquire() (*Frame, error)
}

// Frame is one compressed (JPEG) capture product.
type Frame struct {
	data    []byte
	release func()
}

// NewFrame wraps data as a frame. release, if non-nil, runs once on Release.
func NewFrame(data []byte, release func()) *Frame {
	return &Frame{data: data, release: release}
}

// Bytes returns the frame contents. Invalid after Release.
func (f *Frame) Bytes() []byte { return f.data }

// Len returns the frame length in bytes.
func (f *Frame) Len() int { return len(f.data) }

// Release hands the frame buffer back to the sensor. Safe to call twice.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	if f.release != nil {
		f.release()
		f.release = nil
	}
	f.data = nil
}
