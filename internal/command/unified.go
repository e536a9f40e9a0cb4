package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Dispatcher is the bridge surface the executor needs. *bridge.Client
// satisfies it.
type Dispatcher interface {
	Execute(ctx context.Context, command string, params any) (json.RawMessage, error)
}

// ElementResult is the outcome of one configuration within a batch.
type ElementResult struct {
	// Index is the element's position in the submitted sequence.
	Index int `json:"index"`

	// NodeIDs are the identifiers the element produced, flattened from the
	// payload. A successful element may produce zero, one, or many.
	NodeIDs []string `json:"nodeIds,omitempty"`

	// Payload is the raw result for successful elements.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Err is the element's failure, nil on success.
	Err error `json:"-"`

	// Error is Err's message for serialized views.
	Error string `json:"error,omitempty"`
}

// BatchResult aggregates a unified call. Element order equals submission
// order; there are no transactional semantics, so results produced before a
// failing element are preserved.
type BatchResult struct {
	// Singular records whether the caller submitted one configuration
	// rather than an array, so the response can mirror their intent.
	Singular bool `json:"singular"`

	Elements []ElementResult `json:"elements"`
}

// NodeIDs flattens every element's produced identifiers into one ordered
// sequence.
func (r *BatchResult) NodeIDs() []string {
	var ids []string
	for _, el := range r.Elements {
		ids = append(ids, el.NodeIDs...)
	}
	return ids
}

// Succeeded counts elements that resolved.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, el := range r.Elements {
		if el.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts elements that were rejected.
func (r *BatchResult) Failed() int {
	return len(r.Elements) - r.Succeeded()
}

// FirstErr returns the first failing element's error, annotated with its
// position, or nil if every element succeeded.
func (r *BatchResult) FirstErr() error {
	for _, el := range r.Elements {
		if el.Err != nil {
			return fmt.Errorf("element %d: %w", el.Index, el.Err)
		}
	}
	return nil
}

// SplitConfigs normalizes a unified parameter payload: a JSON array becomes
// its elements, anything else becomes a one-element sequence flagged as
// singular.
func SplitConfigs(raw json.RawMessage) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty configuration payload")
	}

	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, true, nil
	}

	var configs []json.RawMessage
	if err := json.Unmarshal(trimmed, &configs); err != nil {
		return nil, false, fmt.Errorf("invalid configuration array: %w", err)
	}
	if len(configs) == 0 {
		return nil, false, fmt.Errorf("configuration array is empty")
	}
	return configs, false, nil
}

// Run dispatches one underlying command per configuration, in sequence order,
// awaiting each before issuing the next. The plugin-side executor is not
// assumed reentrant for node creation within one parent, so there is no
// concurrent fan-out. A failing element does not stop the sequence: later
// elements are still attempted and earlier results are kept.
func Run(ctx context.Context, d Dispatcher, name string, configs []json.RawMessage, singular bool) *BatchResult {
	out := &BatchResult{
		Singular: singular,
		Elements: make([]ElementResult, 0, len(configs)),
	}

	for i, cfg := range configs {
		el := ElementResult{Index: i}
		payload, err := d.Execute(ctx, name, cfg)
		if err != nil {
			el.Err = err
			el.Error = err.Error()
		} else {
			el.Payload = payload
			el.NodeIDs = ExtractNodeIDs(payload)
		}
		out.Elements = append(out.Elements, el)
	}
	return out
}

// RunUnified is Run over a raw payload that may be one configuration or an
// array of them.
func RunUnified(ctx context.Context, d Dispatcher, name string, raw json.RawMessage) (*BatchResult, error) {
	configs, singular, err := SplitConfigs(raw)
	if err != nil {
		return nil, err
	}
	return Run(ctx, d, name, configs, singular), nil
}
