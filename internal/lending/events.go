package lending

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventType names a ledger event after the contract event it mirrors.
type EventType string

const (
	EventCollateralDeposited     EventType = "CollateralDeposited"
	EventCollateralWithdrawn     EventType = "CollateralWithdrawn"
	EventLoanTaken               EventType = "LoanTaken"
	EventLoanRepaid              EventType = "LoanRepaid"
	EventCollateralFactorUpdated EventType = "CollateralFactorUpdated"
)

// Event is emitted after a mutation commits. Seq is ledger-wide and strictly
// increasing; events for one account are emitted in commit order.
type Event struct {
	Seq              uint64
	Type             EventType
	Account          common.Address
	Amount           uint256.Int
	LockedCollateral uint256.Int
	OldFactor        uint64
	NewFactor        uint64
}

// EventSink receives ledger events. Emit must not call back into the ledger
// for the same account.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(ev Event) { f(ev) }

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ev Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}

// MemorySink buffers events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Emit(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Drain returns the buffered events and clears the buffer.
func (s *MemorySink) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}
