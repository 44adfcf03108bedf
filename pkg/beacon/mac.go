package beacon

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MAC is a 48-bit Bluetooth device address, most-significant octet first.
type MAC [6]byte

// String formats the address as 01:23:45:67:89:AB.
func (m MAC) String() string {
	const digits = "0123456789ABCDEF"
	buf := make([]byte, 0, 17)
	for i, b := range m {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, digits[b>>4], digits[b&0xf])
	}
	return string(buf)
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// IsZero tells whether the address is unset.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// ParseMAC accepts six hex octets separated by ':' or '-', or twelve
// hex digits without separators, in any case.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	s = strings.TrimSpace(s)
	digits := make([]byte, 0, 12)
	switch len(s) {
	case 12:
		digits = append(digits, s...)
	case 17:
		sep := s[2]
		if sep != ':' && sep != '-' {
			return m, fmt.Errorf("invalid MAC %q", s)
		}
		for i := 0; i < len(m); i++ {
			if i > 0 && s[i*3-1] != sep {
				return m, fmt.Errorf("invalid MAC %q", s)
			}
			digits = append(digits, s[i*3:i*3+2]...)
		}
	default:
		return m, fmt.Errorf("invalid MAC %q", s)
	}
	if _, err := hex.Decode(m[:], digits); err != nil {
		return m, fmt.Errorf("invalid MAC %q: %w", s, err)
	}
	return m, nil
}

// macFromLE builds a MAC from six octets transmitted LSB first.
func macFromLE(b []byte) MAC {
	var m MAC
	for i := range m {
		m[i] = b[len(m)-1-i]
	}
	return m
}
