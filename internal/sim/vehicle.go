// Package sim models the simulator side of the bridge: it decodes vehicle
// telemetry and renders vehicle and environment commands in the simulator's
// key/value wire format.
package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opencav/shmbridge/internal/util"
	"github.com/opencav/shmbridge/pkg/core"
)

// Telemetry field suffixes. The wire key is "<vehicle id> <suffix>".
const (
	FieldPosition        = "Position"
	FieldCollisions      = "Collisions"
	FieldSpeed           = "Speed"
	FieldThrottle        = "Throttle"
	FieldSteering        = "Steering"
	FieldBrake           = "Brake"
	FieldHandbrake       = "Handbrake"
	FieldEncoderTicks    = "Encoder Ticks"
	FieldEncoderAngles   = "Encoder Angles"
	FieldQuaternion      = "Orientation Quaternion"
	FieldEulerAngles     = "Orientation Euler Angles"
	FieldAngularVelocity = "Angular Velocity"
	FieldLinearAccel     = "Linear Acceleration"
)

// Command field suffixes.
const (
	CommandCosim      = "CoSim"
	CommandThrottle   = "Throttle"
	CommandSteering   = "Steering"
	CommandBrake      = "Brake"
	CommandHandbrake  = "Handbrake"
	CommandHeadlights = "Headlights"
	CommandIndicators = "Indicators"
)

// opaqueFields are sensor payloads kept verbatim.
var opaqueFields = map[string]bool{
	"Front Camera Image":    true,
	"Rear Camera Image":     true,
	"LIDAR Pointcloud":      true,
	"LIDAR Range Array":     true,
	"LIDAR Intensity Array": true,
}

// Vehicle decodes telemetry for and renders commands to one simulated vehicle.
type Vehicle struct {
	// ID is the key prefix used by the simulator, e.g. "V1".
	ID string
	// Strict rejects keys that carry this vehicle's prefix but are not known fields.
	Strict bool
}

// Key returns the wire key for a field suffix.
func (v Vehicle) Key(suffix string) string {
	return v.ID + " " + suffix
}

// ParseTelemetry decodes one telemetry payload. Position and Collisions are required.
// Keys belonging to other vehicles or to the environment are ignored.
func (v Vehicle) ParseTelemetry(data []byte) (core.VehicleState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.VehicleState{}, fieldError("", ErrMalformedPayload, err)
	}
	if raw == nil {
		return core.VehicleState{}, fieldError("", ErrMalformedPayload, nil)
	}

	state := core.VehicleState{ID: v.ID}
	prefix := v.ID + " "
	var havePosition, haveCollisions bool

	for key, value := range raw {
		suffix, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		text, err := scalarText(value)
		if err != nil {
			return core.VehicleState{}, fieldError(key, ErrInvalidValue, err)
		}

		switch suffix {
		case FieldPosition:
			state.Position, err = parseVec3(text)
			havePosition = true
		case FieldCollisions:
			state.CollisionCount, err = parseCount(text)
			haveCollisions = true
		case FieldSpeed:
			state.Speed, err = parseScalar(text)
		case FieldThrottle:
			state.Throttle, err = parseScalar(text)
		case FieldSteering:
			state.Steering, err = parseScalar(text)
		case FieldBrake:
			state.Brake, err = parseScalar(text)
		case FieldHandbrake:
			state.Handbrake, err = parseScalar(text)
		case FieldEncoderTicks:
			state.EncoderTicks, err = parseFloats(text)
		case FieldEncoderAngles:
			state.EncoderAngles, err = parseFloats(text)
		case FieldQuaternion:
			state.Quaternion, err = parseVector(text, 4)
		case FieldEulerAngles:
			state.EulerAngles, err = parseVec3(text)
		case FieldAngularVelocity:
			state.AngularVel, err = parseVec3(text)
		case FieldLinearAccel:
			state.LinearAccel, err = parseVec3(text)
		default:
			if opaqueFields[suffix] {
				if state.Opaque == nil {
					state.Opaque = make(map[string]string)
				}
				state.Opaque[suffix] = text
				continue
			}
			if v.Strict {
				return core.VehicleState{}, fieldError(key, ErrUnknownField, nil)
			}
			continue
		}
		if err != nil {
			return core.VehicleState{}, fieldError(key, ErrInvalidValue, err)
		}
	}

	if !havePosition {
		return core.VehicleState{}, fieldError(v.Key(FieldPosition), ErrMissingField, nil)
	}
	if !haveCollisions {
		return core.VehicleState{}, fieldError(v.Key(FieldCollisions), ErrMissingField, nil)
	}
	return state, nil
}

// GenerateCommands renders the vehicle command fields.
func (v Vehicle) GenerateCommands(cmd core.VehicleCommands) map[string]string {
	return map[string]string{
		v.Key(CommandCosim):      strconv.Itoa(cmd.CosimMode),
		v.Key(CommandThrottle):   util.FormatFloat(cmd.Throttle),
		v.Key(CommandSteering):   util.FormatFloat(cmd.Steering),
		v.Key(CommandBrake):      util.FormatFloat(cmd.Brake),
		v.Key(CommandHandbrake):  util.FormatFloat(cmd.Handbrake),
		v.Key(CommandHeadlights): strconv.Itoa(int(cmd.Headlights)),
		v.Key(CommandIndicators): strconv.Itoa(int(cmd.Indicators)),
	}
}

// scalarText accepts a JSON string or number and returns its text.
func scalarText(value json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", value)
	}
	return n.String(), nil
}

func parseScalar(text string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, err
	}
	if err := checkFinite(f); err != nil {
		return 0, err
	}
	return f, nil
}

func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite value %v", f)
	}
	return nil
}

func parseCount(text string) (int, error) {
	f, err := parseScalar(text)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("collision count %v is not a non-negative integer", f)
	}
	return int(f), nil
}

// parseFloats parses a vector and rejects NaN and infinite components.
func parseFloats(text string) ([]float64, error) {
	vals, err := util.ParseFloats(text)
	if err != nil {
		return nil, err
	}
	for _, f := range vals {
		if err := checkFinite(f); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func parseVector(text string, n int) ([]float64, error) {
	vals, err := parseFloats(text)
	if err != nil {
		return nil, err
	}
	if len(vals) != n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(vals))
	}
	return vals, nil
}

func parseVec3(text string) (core.Vec3, error) {
	vals, err := parseVector(text, 3)
	if err != nil {
		return core.Vec3{}, err
	}
	return core.Vec3FromSlice(vals), nil
}
