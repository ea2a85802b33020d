// Package shm implements the named shared memory segment shared with the
// external control process.
//
// A segment is a fixed-size file in the POSIX shared memory namespace
// (/dev/shm on Linux), mapped MAP_SHARED so every process that attaches by
// name sees the same bytes. Scalar fields are 8-byte IEEE-754 doubles in
// the host byte order at fixed offsets (see layout.go).
//
// The package provides no synchronization of the data itself. Write
// ownership is partitioned per field: the bridge writes only the DTC field,
// the external process writes only the four actuator fields. Readers may
// observe a torn value while the other side is mid-write.
package shm
