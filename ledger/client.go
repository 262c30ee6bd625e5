// Package ledger defines the boundary between the engine and the external
// ledger. The engine never assumes finality when Submit returns; it only relies
// on the ledger having accepted the transaction for broadcast.
package ledger

import (
	"context"

	sdkmath "cosmossdk.io/math"
)

// TxKind identifies the engine operation carried by a transaction.
type TxKind string

const (
	TxKindBond       TxKind = "staking.bond"
	TxKindUnbond     TxKind = "staking.unbond"
	TxKindWithdraw   TxKind = "staking.withdrawUnbonded"
	TxKindClaim      TxKind = "staking.payoutStakers"
	TxKindVote       TxKind = "governance.vote"
	TxKindDelegate   TxKind = "governance.delegate"
	TxKindUndelegate TxKind = "governance.undelegate"
)

// Tx is the payload handed to the ledger client. Signing and wire encoding are
// the client's responsibility.
type Tx struct {
	Kind       TxKind      `json:"kind"`
	Account    string      `json:"account"`
	Amount     sdkmath.Int `json:"amount"`
	Validators []string    `json:"validators,omitempty"`
	Target     string      `json:"target,omitempty"`
	ProposalID uint64      `json:"proposal_id,omitempty"`
	Choice     string      `json:"choice,omitempty"`
	Conviction uint8       `json:"conviction,omitempty"`
	Reference  string      `json:"reference,omitempty"`
}

// TxID is the identifier returned by the ledger for an accepted transaction.
type TxID string

// Client is the contract the engine requires of the ledger. Delivery is
// at-least-once; idempotency is the ledger's concern.
type Client interface {
	Submit(ctx context.Context, tx Tx) (TxID, error)
	QueryBalance(ctx context.Context, account string) (sdkmath.Int, error)
	QueryStakedBalance(ctx context.Context, account string) (sdkmath.Int, error)
	BlockHeight(ctx context.Context) (uint64, error)
}
