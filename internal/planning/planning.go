// Package planning computes the planning metrics published to the external controller.
package planning

import (
	"gonum.org/v1/gonum/floats"

	"github.com/opencav/shmbridge/pkg/core"
)

// DefaultTarget is the scenario's goal coordinate.
var DefaultTarget = core.Vec3{X: -242.16, Y: -119.00, Z: 341.91}

// ComputeDTC returns the distance to collision target: the Euclidean norm of position - target.
func ComputeDTC(position, target core.Vec3) float64 {
	return floats.Distance(position.Slice(), target.Slice(), 2)
}
