package chain

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed describes the chain state a sandbox starts from: originated
// contracts, asset holdings, escrow approvals and operators, tez balances.
type Seed struct {
	Contracts []SeedContract    `yaml:"contracts"`
	Tez       map[string]uint64 `yaml:"tez"`
}

type SeedContract struct {
	Address   string         `yaml:"address"`
	Kind      string         `yaml:"kind"`
	TokenIDs  []uint64       `yaml:"token_ids"`
	Holdings  []SeedHolding  `yaml:"holdings"`
	Approvals []SeedApproval `yaml:"approvals"`
	Operators []SeedOperator `yaml:"operators"`
}

type SeedHolding struct {
	Owner   string `yaml:"owner"`
	TokenID uint64 `yaml:"token_id"`
	Amount  uint64 `yaml:"amount"`
}

// SeedApproval is an FA1.2 allowance granted by owner to spender.
type SeedApproval struct {
	Owner   string `yaml:"owner"`
	Spender string `yaml:"spender"`
	Amount  uint64 `yaml:"amount"`
}

// SeedOperator is an FA2 operator added by owner for one token id.
type SeedOperator struct {
	Owner    string `yaml:"owner"`
	Operator string `yaml:"operator"`
	TokenID  uint64 `yaml:"token_id"`
}

// LoadSeedFile reads a YAML seed. Unknown keys are rejected so a typo does
// not silently leave the sandbox empty.
func LoadSeedFile(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read sandbox seed %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)

	var seed Seed
	if err := decoder.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode sandbox seed %s: %w", path, err)
	}
	return seed, nil
}

// Apply originates the seeded contracts and credits balances in file order.
func (s *Sandbox) Apply(seed Seed) error {
	for _, c := range seed.Contracts {
		if err := s.applyContract(c); err != nil {
			return fmt.Errorf("seed contract %s: %w", c.Address, err)
		}
	}
	for account, mutez := range seed.Tez {
		s.Credit(account, mutez)
	}

	s.logger.Info("sandbox seeded",
		"event", "chain_sandbox_seeded",
		"module", "internal/platform/chain",
		"layer", "platform",
		"contracts", len(seed.Contracts),
		"tez_accounts", len(seed.Tez),
	)
	return nil
}

func (s *Sandbox) applyContract(c SeedContract) error {
	switch c.Kind {
	case "fa1.2":
		if len(c.Operators) > 0 {
			return fmt.Errorf("%w: fa1.2 contracts take approvals, not operators", ErrMalformedParameters)
		}
		if err := s.DeployFA12(c.Address); err != nil {
			return err
		}
	case "fa2":
		if len(c.Approvals) > 0 {
			return fmt.Errorf("%w: fa2 contracts take operators, not approvals", ErrMalformedParameters)
		}
		if err := s.DeployFA2(c.Address, c.TokenIDs...); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: contract kind %q", ErrMalformedParameters, c.Kind)
	}

	for _, h := range c.Holdings {
		if err := s.Mint(c.Address, h.Owner, h.TokenID, h.Amount); err != nil {
			return err
		}
	}
	for _, a := range c.Approvals {
		if err := s.Approve(c.Address, a.Owner, a.Spender, a.Amount); err != nil {
			return err
		}
	}
	for _, o := range c.Operators {
		if err := s.AddOperator(c.Address, o.Owner, o.Operator, o.TokenID); err != nil {
			return err
		}
	}
	return nil
}
