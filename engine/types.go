package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies a state-changing operation.
type EventKind string

const (
	EventDeposit           EventKind = "deposit"
	EventWithdraw          EventKind = "withdraw"
	EventEmergencyWithdraw EventKind = "emergencyWithdraw"
	EventSendReward        EventKind = "sendReward"
	EventUnlock            EventKind = "unlock"
)

// Event is the structured record emitted by every state-changing operation,
// consumed by off-system observers and tests.
type Event struct {
	Kind  EventKind      `json:"kind"`
	Block uint64         `json:"block"`
	User  common.Address `json:"user"`

	// PoolID is set for pool-scoped events (deposit, withdraw, emergency
	// withdraw, send reward); unlock events are holder-scoped only. Always
	// serialized, since pool 0 is a valid id.
	PoolID uint64 `json:"poolId"`

	// Amount is the operation's principal amount: tokens staked, tokens
	// returned, total reward sent, or tokens released from the lock ledger.
	Amount *big.Int `json:"amount"`

	// Locked is the portion of a sendReward amount routed to the lock ledger.
	Locked *big.Int `json:"locked,omitempty"`

	// Referrer is carried for deposit and withdraw records; it has no
	// accounting effect.
	Referrer common.Address `json:"referrer,omitempty"`
}

// Recorder consumes event records. Implementations must not mutate the event.
type Recorder interface {
	Record(ev Event)
}
