package tokens

import (
	"encoding/json"
	"fmt"

	"tiof/contexts/token-trading/marketplace-service/domain/entities"
	domainerrors "tiof/contexts/token-trading/marketplace-service/domain/errors"
)

const transferEntrypoint = "transfer"

type fa12Transfer struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value uint64 `json:"value"`
}

type fa2Transfer struct {
	From string          `json:"from_"`
	Txs  []fa2TransferTx `json:"txs"`
}

type fa2TransferTx struct {
	To      string `json:"to_"`
	TokenID uint64 `json:"token_id"`
	Amount  uint64 `json:"amount"`
}

// EncodeTransfer renders a custody move as the transfer call of its token kind.
// FA1.2 has one token per contract, so TokenID is not part of its call.
func EncodeTransfer(transfer entities.AssetTransfer) (entities.ContractCall, error) {
	var (
		params []byte
		err    error
	)
	switch transfer.Kind {
	case entities.TokenKindFA12:
		params, err = json.Marshal(fa12Transfer{
			From:  string(transfer.From),
			To:    string(transfer.To),
			Value: transfer.Amount,
		})
	case entities.TokenKindFA2:
		params, err = json.Marshal([]fa2Transfer{{
			From: string(transfer.From),
			Txs: []fa2TransferTx{{
				To:      string(transfer.To),
				TokenID: transfer.TokenID,
				Amount:  transfer.Amount,
			}},
		}})
	default:
		return entities.ContractCall{}, fmt.Errorf("%w: token kind %d", domainerrors.ErrInvalidRequest, transfer.Kind)
	}
	if err != nil {
		return entities.ContractCall{}, err
	}
	return entities.ContractCall{
		Contract:   transfer.Contract,
		Entrypoint: transferEntrypoint,
		Parameters: params,
	}, nil
}
