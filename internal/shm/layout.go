package shm

import "fmt"

const (
	// DefaultName is the deployment-wide segment name.
	DefaultName = "AutoDRIVE"
	// DefaultSize is the segment size in bytes.
	DefaultSize = 1024
	// FieldWidth is the width of every scalar field.
	FieldWidth = 8
)

// Field offsets. The actuator fields sit on a 9-byte stride (one unused byte
// after each value) while DTC follows handbrake's gap at 36. External
// controllers already use these exact offsets, so they are the contract.
// None of them except throttle is 8-byte aligned.
const (
	OffsetThrottle  = 0
	OffsetSteering  = 9
	OffsetBrake     = 18
	OffsetHandbrake = 27
	OffsetDTC       = 36
)

// Field names one scalar slot in the segment.
type Field struct {
	Name   string
	Offset int
}

var (
	FieldThrottle  = Field{Name: "throttle", Offset: OffsetThrottle}
	FieldSteering  = Field{Name: "steering", Offset: OffsetSteering}
	FieldBrake     = Field{Name: "brake", Offset: OffsetBrake}
	FieldHandbrake = Field{Name: "handbrake", Offset: OffsetHandbrake}
	FieldDTC       = Field{Name: "dtc", Offset: OffsetDTC}
)

// ActuatorFields returns the fields written by the external process, in layout order.
func ActuatorFields() []Field {
	return []Field{FieldThrottle, FieldSteering, FieldBrake, FieldHandbrake}
}

// Fields returns every field of the layout, in layout order.
func Fields() []Field {
	return append(ActuatorFields(), FieldDTC)
}

// FieldByName looks a field up by its name.
func FieldByName(name string) (Field, bool) {
	for _, f := range Fields() {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// End returns the first byte past the field.
func (f Field) End() int {
	return f.Offset + FieldWidth
}

// ValidateLayout checks that every field fits in a segment of the given size.
func ValidateLayout(size int) error {
	for _, f := range Fields() {
		if f.End() > size {
			return fmt.Errorf("%w: field %s ends at %d, segment size %d", ErrOutOfBounds, f.Name, f.End(), size)
		}
	}
	return nil
}
