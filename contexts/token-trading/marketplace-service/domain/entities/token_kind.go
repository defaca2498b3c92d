package entities

import (
	"strings"
)

// TokenKind selects the transfer convention of an asset contract.
type TokenKind uint8

const (
	// TokenKindFA12 is a single fungible token moved with an allowance.
	TokenKindFA12 TokenKind = 0
	// TokenKindFA2 is a multi-asset contract moved by an authorized operator.
	TokenKindFA2 TokenKind = 1
)

func ParseTokenKind(raw string) (TokenKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fa1.2", "fa12", "0":
		return TokenKindFA12, true
	case "fa2", "1":
		return TokenKindFA2, true
	default:
		return 0, false
	}
}

func (k TokenKind) Valid() bool {
	return k == TokenKindFA12 || k == TokenKindFA2
}

func (k TokenKind) String() string {
	switch k {
	case TokenKindFA12:
		return "fa1.2"
	case TokenKindFA2:
		return "fa2"
	default:
		return "unknown"
	}
}
