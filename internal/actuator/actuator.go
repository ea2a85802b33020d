// Package actuator turns the raw setpoints written by the external controller
// into normalized vehicle commands.
package actuator

import (
	"fmt"

	"github.com/opencav/shmbridge/internal/shm"
	"github.com/opencav/shmbridge/pkg/core"
)

// Scale converts the controller's percent-like values into command fractions.
const Scale = 100.0

// Reader reads doubles at byte offsets. *shm.Segment implements it.
type Reader interface {
	ReadFloat64(offset int) (float64, error)
}

// Raw returns the four actuator fields exactly as stored.
func Raw(r Reader) (core.ActuatorCommands, error) {
	var raw [4]float64
	for i, f := range shm.ActuatorFields() {
		v, err := r.ReadFloat64(f.Offset)
		if err != nil {
			return core.ActuatorCommands{}, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		raw[i] = v
	}
	return core.ActuatorCommands{
		Throttle:  raw[0],
		Steering:  raw[1],
		Brake:     raw[2],
		Handbrake: raw[3],
	}, nil
}

// ReadCommands reads the actuator fields and divides each by Scale.
// Values are passed through unclamped.
func ReadCommands(r Reader) (core.ActuatorCommands, error) {
	raw, err := Raw(r)
	if err != nil {
		return core.ActuatorCommands{}, err
	}
	return Normalize(raw), nil
}

// Normalize divides every raw value by Scale.
func Normalize(raw core.ActuatorCommands) core.ActuatorCommands {
	return core.ActuatorCommands{
		Throttle:  raw.Throttle / Scale,
		Steering:  raw.Steering / Scale,
		Brake:     raw.Brake / Scale,
		Handbrake: raw.Handbrake / Scale,
	}
}
