package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencav/shmbridge/internal/shm"
)

func newSegment(t *testing.T) (*shm.Segment, string) {
	t.Helper()
	dir := t.TempDir()
	seg, err := shm.Create(shm.Options{Name: shm.DefaultName, Size: shm.DefaultSize, Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = seg.Close()
		_ = seg.Unlink()
	})
	return seg, dir
}

func TestRun_SetThenGet(t *testing.T) {
	seg, dir := newSegment(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"--dir", dir, "set", "throttle", "50"}, &out))

	v, err := seg.ReadFloat64(shm.OffsetThrottle)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)

	require.NoError(t, run(ctx, []string{"--dir", dir, "get", "THROTTLE"}, &out))
	assert.Equal(t, "50.0\n", out.String())
}

func TestRun_SetRejectsDTC(t *testing.T) {
	seg, dir := newSegment(t)
	require.NoError(t, seg.WriteFloat64(shm.OffsetDTC, 12.5))

	err := run(context.Background(), []string{"--dir", dir, "set", "DTC", "0"}, &bytes.Buffer{})
	require.Error(t, err)

	v, err := seg.ReadFloat64(shm.OffsetDTC)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
}

func TestRun_Dump(t *testing.T) {
	seg, dir := newSegment(t)
	require.NoError(t, seg.WriteFloat64(shm.OffsetSteering, -25))
	require.NoError(t, seg.WriteFloat64(shm.OffsetDTC, 12.5))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--dir", dir, "dump"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, []string{"FIELD", "OFFSET", "RAW", "COMMAND"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"steering", "9", "-25.0", "-0.25"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"dtc", "36", "12.5", "-"}, strings.Fields(lines[5]))
}

func TestRun_Watch(t *testing.T) {
	seg, dir := newSegment(t)
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--dir", dir, "--interval", "5ms", "watch"}, &out)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, seg.WriteFloat64(shm.OffsetBrake, 100))
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "only changes are printed")
	assert.Contains(t, lines[0], "brake=0.0")
	assert.Contains(t, lines[1], "brake=100.0")
}

func TestRun_Errors(t *testing.T) {
	_, dir := newSegment(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", []string{"--dir", dir}, "usage"},
		{"unknown command", []string{"--dir", dir, "poke"}, "unknown command"},
		{"unknown field", []string{"--dir", dir, "get", "speed"}, `unknown field "speed"`},
		{"bad value", []string{"--dir", dir, "set", "brake", "abc"}, `invalid value "abc"`},
		{"set dtc", []string{"--dir", dir, "set", "dtc", "0"}, "field dtc is written by the bridge"},
		{"missing segment", []string{"--dir", dir, "--name", "Other", "dump"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(ctx, tt.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
