package capture

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cjeanneret/sdcam/internal/debug"
	"github.com/cjeanneret/sdcam/internal/hw/camera"
	"github.com/cjeanneret/sdcam/internal/storage"
)

var (
	// ErrCaptureFailed means the sensor produced no frame. Nothing was written.
	ErrCaptureFailed = errors.New("camera capture failed")

	// ErrCounterUnavailable means the sequence counter could not be read. The frame was discarded.
	ErrCounterUnavailable = errors.New("failed to read file counter")

	// ErrPersistFailed means the frame could not be written. The counter was not advanced.
	ErrPersistFailed = errors.New("failed to store image")
)

// State is a step of a single capture.
type State int

const (
	Idle State = iota
	Acquiring
	Naming
	Persisting
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Naming:
		return "naming"
	case Persisting:
		return "persisting"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CounterStore is the durable sequence record.
type CounterStore interface {
	Read() (int, error)
	Write(v int) error
}

// FileWriter persists a named byte buffer.
type FileWriter interface {
	Create(name string, data []byte) error
}

// NameFunc derives the stored file name from a sequence number.
type NameFunc func(n int) string

// Result describes a committed capture.
type Result struct {
	Sequence int
	Name     string
	Data     []byte

	// CounterAdvanced is false when the image was stored but the counter
	// could not be moved past Sequence. The next capture will reuse the
	// same number and overwrite Name.
	CounterAdvanced bool
}

// Workflow runs acquire → name → persist → advance, one capture at a time.
// It holds no lock: callers must not run two captures concurrently, since the
// counter read and advance are separate operations.
type Workflow struct {
	sensor  camera.Sensor
	counter CounterStore
	files   FileWriter
	name    NameFunc
	observe func(State)
}

// NewWorkflow wires a workflow over its collaborators.
func NewWorkflow(sensor camera.Sensor, counter CounterStore, files FileWriter, name NameFunc) *Workflow {
	return &Workflow{
		sensor:  sensor,
		counter: counter,
		files:   files,
		name:    name,
	}
}

// OnTransition registers fn to be called on every state change.
func (w *Workflow) OnTransition(fn func(State)) {
	w.observe = fn
}

func (w *Workflow) enter(s State) {
	debug.Verbose("Capture: -> %s", s)
	if w.observe != nil {
		w.observe(s)
	}
}

func (w *Workflow) fail(cause error, err error) error {
	w.enter(Failed)
	if err == nil {
		return cause
	}
	return fmt.Errorf("%w: %w", cause, err)
}

// Capture takes one picture and stores it under the next sequence number.
// The frame is released on every path.
func (w *Workflow) Capture() (*Result, error) {
	start := time.Now()

	w.enter(Acquiring)
	frame, err := w.sensor.Acquire()
	if err != nil || frame == nil {
		return nil, w.fail(ErrCaptureFailed, err)
	}
	defer frame.Release()

	w.enter(Naming)
	n, err := w.counter.Read()
	switch {
	case errors.Is(err, storage.ErrCorruptRecord):
		// Already reported by the counter store.
		n = 0
	case err != nil:
		return nil, w.fail(ErrCounterUnavailable, err)
	}
	name := w.name(n)

	w.enter(Persisting)
	if err := w.files.Create(name, frame.Bytes()); err != nil {
		return nil, w.fail(ErrPersistFailed, err)
	}

	res := &Result{
		Sequence:        n,
		Name:            name,
		Data:            bytes.Clone(frame.Bytes()),
		CounterAdvanced: true,
	}
	if err := w.counter.Write(n + 1); err != nil {
		// The image is on the medium; report success anyway.
		debug.Errorf("Capture: counter advance failed after storing %s, next capture will overwrite it: %v", name, err)
		res.CounterAdvanced = false
	}

	w.enter(Committed)
	debug.Shot(n, name, humanize.Bytes(uint64(len(res.Data))))
	debug.Verbose("Capture: done in %v", time.Since(start))
	return res, nil
}
