package utils

import (
	"errors"
	"math/bits"
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrInvalidFeeBps      = errors.New("fee basis points must be in [0, 10000]")
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// ComputeFee splits a denomination into fee and payout using integer
// arithmetic: fee = floor(denomination * feeBps / 10000). The multiply is
// widened to 128 bits so no denomination/feeBps combination can overflow.
func ComputeFee(denomination uint64, feeBps uint16) (fee, payout uint64, err error) {
	if feeBps > BpsDenominator {
		return 0, 0, ErrInvalidFeeBps
	}
	hi, lo := bits.Mul64(denomination, uint64(feeBps))
	// hi < 10000 whenever feeBps <= 10000, so the division cannot trap and
	// the quotient fits in 64 bits.
	fee, _ = bits.Div64(hi, lo, BpsDenominator)
	return fee, denomination - fee, nil
}

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}
