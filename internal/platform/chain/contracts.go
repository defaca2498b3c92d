package chain

import (
	"encoding/json"
	"fmt"
)

type contract interface {
	invoke(sender string, entrypoint string, params json.RawMessage) error
	balance(owner string, tokenID uint64) uint64
	clone() contract
	setPaused(paused bool)
}

// fa12 is a single fungible token with spender allowances.
type fa12 struct {
	paused     bool
	balances   map[string]uint64
	allowances map[allowanceKey]uint64
}

type allowanceKey struct {
	owner   string
	spender string
}

type fa12TransferParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value uint64 `json:"value"`
}

type fa12ApproveParams struct {
	Spender string `json:"spender"`
	Value   uint64 `json:"value"`
}

func newFA12() *fa12 {
	return &fa12{
		balances:   make(map[string]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

func (c *fa12) invoke(sender string, entrypoint string, params json.RawMessage) error {
	if c.paused {
		return ErrContractPaused
	}
	switch entrypoint {
	case "transfer":
		var p fa12TransferParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return c.transfer(sender, p)
	case "approve":
		var p fa12ApproveParams
		if err := decodeParams(params, &p); err != nil {
			return err
		}
		return c.approve(sender, p.Spender, p.Value)
	default:
		return fmt.Errorf("%w: fa1.2 %q", ErrUnknownEntrypoint, entrypoint)
	}
}

func (c *fa12) transfer(sender string, p fa12TransferParams) error {
	if p.From == "" || p.To == "" {
		return ErrMalformedParameters
	}
	if sender != p.From {
		key := allowanceKey{owner: p.From, spender: sender}
		if c.allowances[key] < p.Value {
			return ErrNotEnoughAllowance
		}
		c.allowances[key] -= p.Value
	}
	if c.balances[p.From] < p.Value {
		return ErrNotEnoughBalance
	}
	c.balances[p.From] -= p.Value
	c.balances[p.To] += p.Value
	return nil
}

func (c *fa12) approve(owner string, spender string, value uint64) error {
	if spender == "" {
		return ErrMalformedParameters
	}
	key := allowanceKey{owner: owner, spender: spender}
	if c.allowances[key] > 0 && value > 0 {
		return ErrUnsafeAllowanceChange
	}
	c.allowances[key] = value
	return nil
}

func (c *fa12) balance(owner string, _ uint64) uint64 {
	return c.balances[owner]
}

func (c *fa12) setPaused(paused bool) { c.paused = paused }

func (c *fa12) clone() contract {
	next := &fa12{
		paused:     c.paused,
		balances:   make(map[string]uint64, len(c.balances)),
		allowances: make(map[allowanceKey]uint64, len(c.allowances)),
	}
	for k, v := range c.balances {
		next.balances[k] = v
	}
	for k, v := range c.allowances {
		next.allowances[k] = v
	}
	return next
}

// fa2 is a multi-asset ledger keyed by owner and token id, with operators.
type fa2 struct {
	paused    bool
	tokens    map[uint64]struct{}
	ledger    map[holding]uint64
	operators map[operatorKey]struct{}
}

type holding struct {
	owner   string
	tokenID uint64
}

type operatorKey struct {
	owner    string
	operator string
	tokenID  uint64
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

type fa2OperatorUpdate struct {
	Add    *fa2OperatorParam `json:"add_operator,omitempty"`
	Remove *fa2OperatorParam `json:"remove_operator,omitempty"`
}

type fa2OperatorParam struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	TokenID  uint64 `json:"token_id"`
}

func newFA2(tokenIDs ...uint64) *fa2 {
	c := &fa2{
		tokens:    make(map[uint64]struct{}, len(tokenIDs)),
		ledger:    make(map[holding]uint64),
		operators: make(map[operatorKey]struct{}),
	}
	for _, id := range tokenIDs {
		c.tokens[id] = struct{}{}
	}
	return c
}

func (c *fa2) invoke(sender string, entrypoint string, params json.RawMessage) error {
	if c.paused {
		return ErrContractPaused
	}
	switch entrypoint {
	case "transfer":
		var batch []fa2Transfer
		if err := decodeParams(params, &batch); err != nil {
			return err
		}
		for _, item := range batch {
			if err := c.transfer(sender, item); err != nil {
				return err
			}
		}
		return nil
	case "update_operators":
		var updates []fa2OperatorUpdate
		if err := decodeParams(params, &updates); err != nil {
			return err
		}
		for _, update := range updates {
			if err := c.updateOperator(sender, update); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: fa2 %q", ErrUnknownEntrypoint, entrypoint)
	}
}

func (c *fa2) transfer(sender string, item fa2Transfer) error {
	if item.From == "" {
		return ErrMalformedParameters
	}
	for _, tx := range item.Txs {
		if tx.To == "" {
			return ErrMalformedParameters
		}
		if _, ok := c.tokens[tx.TokenID]; !ok {
			return ErrFA2TokenUndefined
		}
		if sender != item.From {
			if _, ok := c.operators[operatorKey{owner: item.From, operator: sender, tokenID: tx.TokenID}]; !ok {
				return ErrFA2NotOperator
			}
		}
		from := holding{owner: item.From, tokenID: tx.TokenID}
		if c.ledger[from] < tx.Amount {
			return ErrFA2InsufficientBalance
		}
		c.ledger[from] -= tx.Amount
		c.ledger[holding{owner: tx.To, tokenID: tx.TokenID}] += tx.Amount
	}
	return nil
}

func (c *fa2) updateOperator(sender string, update fa2OperatorUpdate) error {
	switch {
	case update.Add != nil && update.Remove == nil:
		if update.Add.Owner != sender {
			return ErrFA2NotOwner
		}
		c.operators[operatorKey{owner: sender, operator: update.Add.Operator, tokenID: update.Add.TokenID}] = struct{}{}
	case update.Remove != nil && update.Add == nil:
		if update.Remove.Owner != sender {
			return ErrFA2NotOwner
		}
		delete(c.operators, operatorKey{owner: sender, operator: update.Remove.Operator, tokenID: update.Remove.TokenID})
	default:
		return ErrMalformedParameters
	}
	return nil
}

func (c *fa2) balance(owner string, tokenID uint64) uint64 {
	return c.ledger[holding{owner: owner, tokenID: tokenID}]
}

func (c *fa2) setPaused(paused bool) { c.paused = paused }

func (c *fa2) clone() contract {
	next := &fa2{
		paused:    c.paused,
		tokens:    make(map[uint64]struct{}, len(c.tokens)),
		ledger:    make(map[holding]uint64, len(c.ledger)),
		operators: make(map[operatorKey]struct{}, len(c.operators)),
	}
	for k := range c.tokens {
		next.tokens[k] = struct{}{}
	}
	for k, v := range c.ledger {
		next.ledger[k] = v
	}
	for k := range c.operators {
		next.operators[k] = struct{}{}
	}
	return next
}

func decodeParams(params json.RawMessage, target any) error {
	if err := json.Unmarshal(params, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedParameters, err)
	}
	return nil
}
