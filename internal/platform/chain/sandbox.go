// Package chain is an in-process token chain: tez accounts plus FA1.2 and FA2
// contracts invoked through their JSON entrypoints. Contract calls are staged
// in sessions and become visible atomically on Commit.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Operation is a committed contract call.
type Operation struct {
	Sender     string
	Contract   string
	Entrypoint string
	Parameters json.RawMessage
}

type state struct {
	tez       map[string]uint64
	contracts map[string]contract
}

func (s state) clone() state {
	next := state{
		tez:       make(map[string]uint64, len(s.tez)),
		contracts: make(map[string]contract, len(s.contracts)),
	}
	for k, v := range s.tez {
		next.tez[k] = v
	}
	for k, c := range s.contracts {
		next.contracts[k] = c.clone()
	}
	return next
}

type Sandbox struct {
	mu         sync.Mutex
	state      state
	version    uint64
	operations []Operation
	logger     *slog.Logger
}

func NewSandbox(logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{
		state: state{
			tez:       make(map[string]uint64),
			contracts: make(map[string]contract),
		},
		logger: logger,
	}
}

func (s *Sandbox) DeployFA12(address string) error {
	return s.deploy(address, newFA12())
}

// DeployFA2 originates a multi-asset contract defining tokenIDs.
func (s *Sandbox) DeployFA2(address string, tokenIDs ...uint64) error {
	return s.deploy(address, newFA2(tokenIDs...))
}

func (s *Sandbox) deploy(address string, c contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state.contracts[address]; exists {
		return fmt.Errorf("%w: %s", ErrContractExists, address)
	}
	s.state.contracts[address] = c
	s.version++
	return nil
}

// Mint credits amount of an asset to owner outside any session.
func (s *Sandbox) Mint(address string, owner string, tokenID uint64, amount uint64) error {
	return s.mutate(address, func(c contract) error {
		switch typed := c.(type) {
		case *fa12:
			typed.balances[owner] += amount
		case *fa2:
			typed.tokens[tokenID] = struct{}{}
			typed.ledger[holding{owner: owner, tokenID: tokenID}] += amount
		}
		return nil
	})
}

// Approve calls the FA1.2 approve entrypoint as owner.
func (s *Sandbox) Approve(address string, owner string, spender string, amount uint64) error {
	params, _ := json.Marshal(fa12ApproveParams{Spender: spender, Value: amount})
	return s.call(owner, address, "approve", params)
}

// AddOperator calls the FA2 update_operators entrypoint as owner.
func (s *Sandbox) AddOperator(address string, owner string, operator string, tokenID uint64) error {
	params, _ := json.Marshal([]fa2OperatorUpdate{{
		Add: &fa2OperatorParam{Owner: owner, Operator: operator, TokenID: tokenID},
	}})
	return s.call(owner, address, "update_operators", params)
}

// SetPaused makes every later call to the contract fail with ErrContractPaused.
func (s *Sandbox) SetPaused(address string, paused bool) error {
	return s.mutate(address, func(c contract) error {
		c.setPaused(paused)
		return nil
	})
}

func (s *Sandbox) Credit(account string, mutez uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tez[account] += mutez
	s.version++
}

func (s *Sandbox) TezBalance(account string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.tez[account]
}

func (s *Sandbox) Balance(address string, owner string, tokenID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.contracts[address]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownContract, address)
	}
	return c.balance(owner, tokenID), nil
}

// Operations returns committed contract calls in commit order.
func (s *Sandbox) Operations() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Operation(nil), s.operations...)
}

func (s *Sandbox) mutate(address string, fn func(contract) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.contracts[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContract, address)
	}
	if err := fn(c); err != nil {
		return err
	}
	s.version++
	return nil
}

func (s *Sandbox) call(sender string, address string, entrypoint string, params json.RawMessage) error {
	session := s.Begin(sender)
	if err := session.Invoke(context.Background(), address, entrypoint, params); err != nil {
		_ = session.Abort()
		return err
	}
	return session.Commit()
}

// Begin opens a session whose calls are sent by operator. The session works on
// a private copy of the chain; Commit fails with ErrStaleSession if anything
// else committed in between.
func (s *Sandbox) Begin(operator string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Session{
		sandbox:  s,
		operator: operator,
		base:     s.version,
		staged:   s.state.clone(),
	}
}

type Session struct {
	sandbox  *Sandbox
	operator string
	base     uint64
	staged   state
	pending  []Operation
	closed   bool
}

func (s *Session) Operator() string { return s.operator }

func (s *Session) Invoke(ctx context.Context, address string, entrypoint string, params json.RawMessage) error {
	if err := s.open(ctx); err != nil {
		return err
	}
	c, ok := s.staged.contracts[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContract, address)
	}
	// Contract state is cloned so a failed call leaves the staged view intact.
	trial := c.clone()
	if err := trial.invoke(s.operator, entrypoint, params); err != nil {
		return err
	}
	s.staged.contracts[address] = trial
	s.pending = append(s.pending, Operation{
		Sender:     s.operator,
		Contract:   address,
		Entrypoint: entrypoint,
		Parameters: append(json.RawMessage(nil), params...),
	})
	return nil
}

// CollectPayment moves tez attached by payer to the operator.
func (s *Session) CollectPayment(ctx context.Context, payer string, mutez uint64) error {
	if err := s.open(ctx); err != nil {
		return err
	}
	return s.move(payer, s.operator, mutez)
}

// SendFunds pays mutez from the operator to recipient.
func (s *Session) SendFunds(ctx context.Context, recipient string, mutez uint64) error {
	if err := s.open(ctx); err != nil {
		return err
	}
	return s.move(s.operator, recipient, mutez)
}

func (s *Session) move(from string, to string, mutez uint64) error {
	if s.staged.tez[from] < mutez {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, from)
	}
	s.staged.tez[from] -= mutez
	s.staged.tez[to] += mutez
	return nil
}

func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	sb := s.sandbox
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.version != s.base {
		return ErrStaleSession
	}
	sb.state = s.staged
	sb.version++
	sb.operations = append(sb.operations, s.pending...)
	for _, op := range s.pending {
		sb.logger.Debug("contract call applied",
			"event", "chain_operation_applied",
			"module", "internal/platform/chain",
			"layer", "platform",
			"sender", op.Sender,
			"contract", op.Contract,
			"entrypoint", op.Entrypoint,
		)
	}
	return nil
}

// Abort discards the session. It is a no-op once the session is closed.
func (s *Session) Abort() error {
	s.closed = true
	s.pending = nil
	return nil
}

func (s *Session) open(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}
