package xeutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// AlignmentError is the error returned from CheckAligned when a value is not a multiple of the required alignment
var AlignmentError error = errors.New("value must be a multiple of the alignment")
