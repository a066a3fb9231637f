package xeutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckAligned verifies that value is a multiple of alignment. alignment must be
// a power of two.
func CheckAligned[T Number](value T, alignment T, name string) error {
	if value&(alignment-1) != 0 {
		return cerrors.Wrapf(AlignmentError, "%s is %d, alignment is %d", name, value, alignment)
	}
	return nil
}

func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// RangesOverlap reports whether the half-open ranges [aStart, aStart+aLen) and
// [bStart, bStart+bLen) share at least one address.
func RangesOverlap(aStart, aLen, bStart, bLen uint64) bool {
	return aStart < bStart+bLen && bStart < aStart+aLen
}
