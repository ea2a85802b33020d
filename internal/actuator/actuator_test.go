package actuator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencav/shmbridge/internal/shm"
)

type mapReader map[int]float64

func (m mapReader) ReadFloat64(offset int) (float64, error) {
	return m[offset], nil
}

type failingReader struct {
	failAt int
}

var errRead = errors.New("read failed")

func (f failingReader) ReadFloat64(offset int) (float64, error) {
	if offset == f.failAt {
		return 0, errRead
	}
	return 1, nil
}

func TestReadCommands_ThrottleHalf(t *testing.T) {
	seg, err := shm.Create(shm.Options{Name: "AutoDRIVE", Size: shm.DefaultSize, Dir: t.TempDir()})
	require.NoError(t, err)
	defer seg.Close()

	require.NoError(t, seg.WriteFloat64(shm.OffsetThrottle, 50.0))

	cmds, err := ReadCommands(seg)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cmds.Throttle)
	assert.Equal(t, 0.0, cmds.Steering)
	assert.Equal(t, 0.0, cmds.Brake)
	assert.Equal(t, 0.0, cmds.Handbrake)
}

func TestReadCommands_Linear(t *testing.T) {
	raws := []float64{0, 1, -1, 100, -100, 250, 33.3, -1e9, 1e-9}

	for _, r := range raws {
		reader := mapReader{
			shm.OffsetThrottle:  r,
			shm.OffsetSteering:  -r,
			shm.OffsetBrake:     r * 2,
			shm.OffsetHandbrake: r / 2,
		}
		cmds, err := ReadCommands(reader)
		require.NoError(t, err)
		assert.Equal(t, r/100, cmds.Throttle)
		assert.Equal(t, -r/100, cmds.Steering)
		assert.Equal(t, (r*2)/100, cmds.Brake)
		assert.Equal(t, (r/2)/100, cmds.Handbrake)
	}
}

func TestReadCommands_NoClamping(t *testing.T) {
	cmds, err := ReadCommands(mapReader{shm.OffsetThrottle: 250, shm.OffsetBrake: -40})
	require.NoError(t, err)
	assert.Equal(t, 2.5, cmds.Throttle)
	assert.Equal(t, -0.4, cmds.Brake)
}

func TestReadCommands_ErrorNamesField(t *testing.T) {
	_, err := ReadCommands(failingReader{failAt: shm.OffsetBrake})
	require.Error(t, err)
	assert.ErrorIs(t, err, errRead)
	assert.Contains(t, err.Error(), "brake")
}

func TestRaw_Unscaled(t *testing.T) {
	raw, err := Raw(mapReader{shm.OffsetSteering: -30})
	require.NoError(t, err)
	assert.Equal(t, -30.0, raw.Steering)
}
