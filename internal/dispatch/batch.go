package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/storage"
	"github.com/bringyour/kvbroker/internal/wire"
)

// handleBatch executes each sub-operation of a BATCH request in order
// against the same adapter and session. Operations are independent: there
// is no rollback, and by default (BatchModeContinue) a failing
// sub-operation records its error and execution continues. Setting
// Dispatcher.BatchMode to BatchModeAbort stops at the first failure,
// leaving the remaining operations unexecuted.
// Notifications for successful mutations are emitted as each sub-operation
// completes, not batched at the end.
func (self *Dispatcher) handleBatch(ctx context.Context, adapter storage.Adapter, sess *session.Session, raw json.RawMessage) (interface{}, error) {
	var p batchPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid BATCH payload: %w", err)
	}

	results := make([]batchResult, 0, len(p.Operations))
	for _, op := range p.Operations {
		handler, ok := self.handlers[wire.Opcode(op.Type)]
		if !ok {
			results = append(results, batchResult{Operation: op.ID, Error: fmt.Sprintf("Unknown message type: %s", op.Type)})
			if self.BatchMode == BatchModeAbort {
				break
			}
			continue
		}

		result, err := handler(ctx, adapter, sess, op.Payload)
		if err != nil {
			results = append(results, batchResult{Operation: op.ID, Error: err.Error()})
			if self.BatchMode == BatchModeAbort {
				break
			}
			continue
		}
		results = append(results, batchResult{Operation: op.ID, Result: result})
	}
	return results, nil
}
