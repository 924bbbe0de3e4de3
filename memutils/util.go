package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// MulOverflows reports whether count*size cannot be represented as a non-negative int
func MulOverflows(count, size int) bool {
	if count < 0 || size < 0 {
		return true
	}
	if count == 0 || size == 0 {
		return false
	}
	product := count * size
	return product/count != size || product < 0
}
