package exec

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/journal"
)

// EventType tags execution progress notifications.
type EventType string

const (
	EventRunStart             EventType = "RUN_START"
	EventBatchStart           EventType = "BATCH_START"
	EventFutureStart          EventType = "FUTURE_START"
	EventFutureComplete       EventType = "FUTURE_COMPLETE"
	EventTransactionSent      EventType = "TRANSACTION_SENT"
	EventTransactionConfirmed EventType = "TRANSACTION_CONFIRMED"
	EventFeesBumped           EventType = "FEES_BUMPED"
	EventWiped                EventType = "WIPED"
)

// Event is one progress notification. Fields beyond Type are set when
// meaningful for the event.
type Event struct {
	Type     EventType
	RunID    string
	Batch    int
	FutureID string
	Hash     common.Hash
	Status   journal.Status
	Result   *journal.ExecutionResult
}

// An EventSink receives progress events. Sinks run on the executing
// goroutine and must return quickly.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
