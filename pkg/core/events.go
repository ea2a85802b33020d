// pkg/core/events.go
package core

import (
	"time"
)

// CommandMessage is the outbound payload: field name to rendered value.
type CommandMessage map[string]string

// BridgeStatus is an operational snapshot of the bridge.
// It deliberately carries no telemetry-derived values.
type BridgeStatus struct {
	Time             time.Time     `json:"time"`
	State            string        `json:"state"`
	Segment          string        `json:"segment"`
	VehicleID        string        `json:"vehicleId"`
	Ticks            uint64        `json:"ticks"`
	FailedTicks      uint64        `json:"failedTicks"`
	PublishFailures  uint64        `json:"publishFailures"`
	LastTick         time.Time     `json:"lastTick"`
	LastTickDuration time.Duration `json:"lastTickDuration"`
	Peers            int           `json:"peers"`
}
