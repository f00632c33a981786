package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON and CBOR as a decimal
// string, so callers never have to deal with float precision loss.
type BigInt big.Int

// NewBigInt returns a BigInt with the value of x.
func NewBigInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// MathBigInt converts b to a native big.Int.
func (b *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(b)
}

func (b *BigInt) String() string {
	return (*big.Int)(b).String()
}

// Clone returns a deep copy of b.
func (b *BigInt) Clone() *BigInt {
	return (*BigInt)(new(big.Int).Set((*big.Int)(b)))
}

func (b *BigInt) MarshalText() ([]byte, error) {
	return (*big.Int)(b).MarshalText()
}

func (b *BigInt) UnmarshalText(data []byte) error {
	return (*big.Int)(b).UnmarshalText(data)
}

func (b *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(b.String())
}

func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if _, ok := (*big.Int)(b).SetString(s, 10); !ok {
		return fmt.Errorf("invalid big number %q", s)
	}
	return nil
}

// Equal returns true if b and x represent the same number.
func (b *BigInt) Equal(x *BigInt) bool {
	return (*big.Int)(b).Cmp((*big.Int)(x)) == 0
}

// Cmp compares b and x like big.Int.Cmp does.
func (b *BigInt) Cmp(x *BigInt) int {
	return (*big.Int)(b).Cmp((*big.Int)(x))
}

// Add sets b to x+y and returns b.
func (b *BigInt) Add(x, y *BigInt) *BigInt {
	return (*BigInt)((*big.Int)(b).Add(x.MathBigInt(), y.MathBigInt()))
}

// Sub sets b to x-y and returns b.
func (b *BigInt) Sub(x, y *BigInt) *BigInt {
	return (*BigInt)((*big.Int)(b).Sub(x.MathBigInt(), y.MathBigInt()))
}
