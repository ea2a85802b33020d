// pkg/core/vehicle.go
package core

// Vec3 is a point or direction in the simulator's local Cartesian frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Slice returns the components as a 3-element slice.
func (v Vec3) Slice() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// Vec3FromSlice builds a Vec3 from the first three values of s.
// The caller guarantees len(s) >= 3.
func Vec3FromSlice(s []float64) Vec3 {
	return Vec3{X: s[0], Y: s[1], Z: s[2]}
}

// VehicleState is the decoded telemetry of one vehicle for a single tick.
// Only Position and CollisionCount drive bridge behavior; everything else
// is carried along for logging and diagnostics.
type VehicleState struct {
	ID             string
	Position       Vec3
	CollisionCount int

	Speed         float64
	Throttle      float64
	Steering      float64
	Brake         float64
	Handbrake     float64
	EncoderTicks  []float64
	EncoderAngles []float64
	Quaternion    []float64
	EulerAngles   Vec3
	AngularVel    Vec3
	LinearAccel   Vec3

	// Opaque holds sensor payloads (camera frames, point clouds) verbatim.
	Opaque map[string]string
}

// ActuatorCommands are normalized actuator setpoints.
type ActuatorCommands struct {
	Throttle  float64 `json:"throttle"`
	Steering  float64 `json:"steering"`
	Brake     float64 `json:"brake"`
	Handbrake float64 `json:"handbrake"`
}

// HeadlightMode selects the vehicle headlight combination.
type HeadlightMode int

const (
	HeadlightsDisabled HeadlightMode = iota
	HeadlightsLowBeam
	HeadlightsHighBeam
	HeadlightsParking
	HeadlightsFog
	HeadlightsLowParking
	HeadlightsLowFog
	HeadlightsHighParking
	HeadlightsHighFog
	HeadlightsParkingFog
	HeadlightsLowParkingFog
	HeadlightsHighParkingFog
)

// IndicatorMode selects the turn/hazard indicator state.
type IndicatorMode int

const (
	IndicatorsDisabled IndicatorMode = iota
	IndicatorsLeft
	IndicatorsRight
	IndicatorsHazard
)

// VehicleCommands is the full command set sent to one vehicle.
type VehicleCommands struct {
	// CosimMode 0 means the simulator drives the vehicle from the actuator commands.
	CosimMode int
	ActuatorCommands
	Headlights HeadlightMode
	Indicators IndicatorMode
}
