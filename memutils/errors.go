package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// CorruptionError is the error returned when a debug marker or free list link written by memutils no longer
// holds the value that was written
var CorruptionError error = errors.New("memory corruption detected")
