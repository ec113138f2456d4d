package camera

import (
	"time"

	"github.com/cjeanneret/sdcam/internal/debug"
	"github.com/cjeanneret/sdcam/internal/hw/gpio"
)

// PoweredSensor wraps a Sensor with the board's power-down (PWDN) and flash lines.
// A pin number of 0 means the line is not wired.
//
// Acquire sequence:
// 1. PWDN to LOW (sensor powered up)
// 2. FLASH to HIGH (LED on)
// 3. Wait for warm-up (auto exposure settles)
// 4. Acquire from the inner sensor
// 5. FLASH back to LOW, PWDN back to HIGH
type PoweredSensor struct {
	inner     Sensor
	gpio      gpio.Driver
	powerPin  int
	flashPin  int
	warmup    time.Duration
	keepAwake bool
}

// NewPoweredSensor configures the pins as outputs and parks them in their idle
// state: PWDN HIGH (sensor asleep) unless keepAwake, FLASH LOW.
func NewPoweredSensor(inner Sensor, g gpio.Driver, powerPin, flashPin int, warmup time.Duration, keepAwake bool) *PoweredSensor {
	if powerPin > 0 {
		_ = g.SetupPin(powerPin, gpio.Output)
		_ = g.WritePin(powerPin, gpio.Level(!keepAwake))
	}
	if flashPin > 0 {
		_ = g.SetupPin(flashPin, gpio.Output)
		_ = g.WritePin(flashPin, gpio.Low)
	}

	return &PoweredSensor{
		inner:     inner,
		gpio:      g,
		powerPin:  powerPin,
		flashPin:  flashPin,
		warmup:    warmup,
		keepAwake: keepAwake,
	}
}

// Acquire powers the sensor, fires the flash, and delegates to the inner sensor.
// Pins are restored on every path.
func (p *PoweredSensor) Acquire() (*Frame, error) {
	if p.powerPin > 0 {
		debug.Verbose("Camera: powering sensor (pin %d -> LOW)", p.powerPin)
		if err := p.gpio.WritePin(p.powerPin, gpio.Low); err != nil {
			return nil, err
		}
		if !p.keepAwake {
			defer func() {
				debug.Verbose("Camera: sensor to sleep (pin %d -> HIGH)", p.powerPin)
				_ = p.gpio.WritePin(p.powerPin, gpio.High)
			}()
		}
	}

	if p.flashPin > 0 {
		debug.Verbose("Camera: flash on (pin %d -> HIGH)", p.flashPin)
		if err := p.gpio.WritePin(p.flashPin, gpio.High); err != nil {
			return nil, err
		}
		defer func() {
			debug.Verbose("Camera: flash off (pin %d -> LOW)", p.flashPin)
			_ = p.gpio.WritePin(p.flashPin, gpio.Low)
		}()
	}

	if p.warmup > 0 {
		debug.Verbose("Camera: warming up (%v)", p.warmup)
		time.Sleep(p.warmup)
	}

	return p.inner.Acquire()
}
