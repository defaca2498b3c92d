package entities

import "encoding/json"

// AssetTransfer moves Amount units of one asset between two parties.
type AssetTransfer struct {
	From     Address
	To       Address
	Amount   uint64
	Contract Address
	TokenID  uint64
	Kind     TokenKind
}

// ContractCall is the wire shape of a single token contract invocation.
type ContractCall struct {
	Contract   Address
	Entrypoint string
	Parameters json.RawMessage
}
