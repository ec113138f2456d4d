package camera

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cjeanneret/sdcam/internal/debug"
)

// CommandSensor captures a still by running an external capture tool that
// writes a single JPEG to stdout (e.g. "rpicam-still -n -t 1 -e jpg -o -").
type CommandSensor struct {
	name string
	args []string
	pool sync.Pool
}

// NewCommandSensor creates a sensor from a command line (program + arguments).
func NewCommandSensor(command []string) (*CommandSensor, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("camera: empty capture command")
	}
	s := &CommandSensor{
		name: command[0],
		args: append([]string(nil), command[1:]...),
	}
	s.pool.New = func() any { return new(bytes.Buffer) }
	return s, nil
}

// Acquire runs the capture command once and validates its output.
func (s *CommandSensor) Acquire() (*Frame, error) {
	buf := s.pool.Get().(*bytes.Buffer)
	buf.Reset()
	var stderr bytes.Buffer

	cmd := exec.Command(s.name, s.args...)
	cmd.Stdout = buf
	cmd.Stderr = &stderr

	debug.Verbose("Camera: running %s %s", s.name, strings.Join(s.args, " "))
	if err := cmd.Run(); err != nil {
		s.pool.Put(buf)
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrSensorUnavailable, s.name, err, strings.TrimSpace(stderr.String()))
	}
	if buf.Len() == 0 {
		s.pool.Put(buf)
		return nil, fmt.Errorf("%w: %s produced no data", ErrSensorUnavailable, s.name)
	}
	if mt := mimetype.Detect(buf.Bytes()); !mt.Is("image/jpeg") {
		s.pool.Put(buf)
		return nil, fmt.Errorf("%w: %s produced %s, want image/jpeg", ErrSensorUnavailable, s.name, mt.String())
	}

	return NewFrame(buf.Bytes(), func() { s.pool.Put(buf) }), nil
}
