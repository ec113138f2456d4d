package gpio

import (
	"fmt"

	"github.com/cjeanneret/sdcam/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives the Raspberry Pi header through go-rpio (/dev/gpiomem).
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiRealDriver memory-maps the GPIO block.
// Requires /dev/gpiomem access or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (not a Raspberry Pi, or no /dev/gpiomem access)", err)
	}

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) pin(n int, mode PinMode) (rpio.Pin, error) {
	if p, ok := r.pins[n]; ok {
		return p, nil
	}
	if err := r.SetupPin(n, mode); err != nil {
		return 0, err
	}
	return r.pins[n], nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, err := r.pin(pin, Output)
	if err != nil {
		return err
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	p, err := r.pin(pin, Input)
	if err != nil {
		return Low, err
	}
	state := p.Read()
	debug.GPIO("ReadPin", pin, state)
	return Level(state == rpio.High), nil
}

// Close returns every used pin to input (high impedance) and unmaps GPIO memory.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	for n, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", n)
		p.Input()
	}
	return rpio.Close()
}
