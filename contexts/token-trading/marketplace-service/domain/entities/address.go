package entities

import (
	"strconv"
	"strings"
	"unicode"
)

// Address identifies an account or a token contract.
type Address string

func ParseAddress(raw string) (Address, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	for _, r := range value {
		if unicode.IsSpace(r) {
			return "", false
		}
	}
	return Address(value), true
}

func (a Address) String() string {
	return string(a)
}

// Mutez is a currency amount expressed in micro-units.
type Mutez uint64

func (m Mutez) String() string {
	return strconv.FormatUint(uint64(m), 10) + "mutez"
}
