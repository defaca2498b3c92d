// Package marketplaceservice is the custodial marketplace ledger: registered
// asset markets, escrowed fixed-price sales, and the atomic sell, buy and
// cancel operations that move assets and funds through the escrow account.
//
// Domain and application code reach storage and the token chain only through
// ports; module.go composes them with concrete adapters.
//
// The running api settles against an in-process token chain. It starts empty
// unless SANDBOX_SEED_FILE names a YAML seed of contracts, holdings, escrow
// approvals or operators, and tez balances to originate at startup.
package marketplaceservice
