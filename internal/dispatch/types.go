package dispatch

import (
	"encoding/json"

	"github.com/bringyour/kvbroker/internal/document"
	"github.com/bringyour/kvbroker/internal/storage"
)

type getPayload struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Options    json.RawMessage `json:"options,omitempty"`
}

type setPayload struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Value      document.Value  `json:"value"`
	Options    json.RawMessage `json:"options,omitempty"`
}

type deletePayload struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Options    json.RawMessage `json:"options,omitempty"`
}

type queryPayload struct {
	Collection string                     `json:"collection"`
	Query      map[string]document.Value  `json:"query"`
	Options    json.RawMessage            `json:"options,omitempty"`
}

type subscribePayload struct {
	Collection string `json:"collection"`
	Pattern    string `json:"pattern"`
}

type unsubscribePayload struct {
	Collection string `json:"collection"`
	Pattern    string `json:"pattern"`
}

// batchOperation is one entry of BATCH's `operations` array.
type batchOperation struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type batchPayload struct {
	Operations []batchOperation `json:"operations"`
}

// batchResult is one entry of BATCH_RESPONSE's result array, preserving
// input order.
type batchResult struct {
	Operation string      `json:"operation"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// pingResult is GET's sibling for PING: {pong: true}.
type pingResult struct {
	Pong bool `json:"pong"`
}

func decodeOptions(raw json.RawMessage) storage.Options {
	if len(raw) == 0 {
		return nil
	}
	var opts storage.Options
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil
	}
	return opts
}

// rowsToValues converts Query rows into the wire shape `{key, ...fields}`.
func rowsToValues(rows []storage.Row) []document.Value {
	out := make([]document.Value, len(rows))
	for i, row := range rows {
		fields := make(map[string]document.Value, len(row.Fields)+1)
		for k, v := range row.Fields {
			fields[k] = v
		}
		fields["key"] = document.NewString(row.Key)
		out[i] = document.NewObject(fields)
	}
	return out
}
