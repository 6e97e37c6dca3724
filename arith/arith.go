// Package arith provides the modular arithmetic primitives underlying the
// voting protocol: exponentiation, multiplication and addition over a large
// prime field. All operations are pure functions over math/big integers.
package arith

import (
	"fmt"
	"math/big"
)

// Exp returns base^exponent mod modulus. The computation is logarithmic in
// the exponent (square-and-multiply via big.Int.Exp); exponents here can be
// as large as the field prime, so a linear loop is not acceptable.
func Exp(base, exponent, modulus *big.Int) (*big.Int, error) {
	if err := checkOperands(modulus, base, exponent); err != nil {
		return nil, err
	}
	return new(big.Int).Exp(base, exponent, modulus), nil
}

// MulMod returns a*b mod modulus.
func MulMod(a, b, modulus *big.Int) (*big.Int, error) {
	if err := checkOperands(modulus, a, b); err != nil {
		return nil, err
	}
	result := new(big.Int).Mul(a, b)
	return result.Mod(result, modulus), nil
}

// AddMod returns a+b mod modulus.
func AddMod(a, b, modulus *big.Int) (*big.Int, error) {
	if err := checkOperands(modulus, a, b); err != nil {
		return nil, err
	}
	result := new(big.Int).Add(a, b)
	return result.Mod(result, modulus), nil
}

func checkOperands(modulus *big.Int, operands ...*big.Int) error {
	if modulus == nil || modulus.Cmp(big.NewInt(2)) < 0 {
		return fmt.Errorf("modulus must be an integer >= 2")
	}
	for _, op := range operands {
		if op == nil {
			return fmt.Errorf("nil operand")
		}
		if op.Sign() < 0 {
			return fmt.Errorf("negative operand %s", op)
		}
	}
	return nil
}
