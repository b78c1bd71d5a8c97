package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part used for yieldrouter account
// addresses.
const AddressPrefix = "yld"

// AddressLength is the byte length of an account address.
const AddressLength = 20

var (
	ErrInvalidAddress = errors.New("crypto: invalid address")
	ErrWrongPrefix    = errors.New("crypto: unexpected address prefix")
)

// Address identifies an account (user, owner, custody or pool) by its 20 raw
// bytes. The canonical text form is bech32 with the "yld" prefix.
type Address [AddressLength]byte

// NewAddress copies b into an Address. It panics when b is not 20 bytes long.
func NewAddress(b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	var a Address
	copy(a[:], b)
	return a
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero value, which is never a
// valid account.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler so addresses round-trip through
// JSON and TOML in their bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string decodes to
// the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	trimmed := strings.TrimSpace(string(text))
	if trimmed == "" {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(trimmed)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 "yld" address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, raw, err := decodeBech32(addrStr)
	if err != nil {
		return Address{}, err
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("%w: %q", ErrWrongPrefix, prefix)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(raw))
	}
	return NewAddress(raw), nil
}

// ValidateExternal checks that an external identifier (for example a protocol
// contract address on another network) is well-formed bech32 of any prefix and
// returns its canonical lower-case form.
func ValidateExternal(addrStr string) (string, error) {
	prefix, raw, err := decodeBech32(addrStr)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidAddress)
	}
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	canonical, err := bech32.Encode(prefix, conv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return canonical, nil
}

func decodeBech32(addrStr string) (string, []byte, error) {
	trimmed := strings.ToLower(strings.TrimSpace(addrStr))
	if trimmed == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid bech32 string: %v", ErrInvalidAddress, err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: error converting bits: %v", ErrInvalidAddress, err)
	}
	return prefix, conv, nil
}
