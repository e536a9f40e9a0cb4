package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// scriptedDispatcher fails the indexes listed in failAt and records every
// dispatched command in order.
type scriptedDispatcher struct {
	calls  []string
	params []json.RawMessage
	failAt map[int]error
	result func(call int) json.RawMessage
}

func (d *scriptedDispatcher) Execute(_ context.Context, command string, params any) (json.RawMessage, error) {
	call := len(d.calls)
	d.calls = append(d.calls, command)
	raw, _ := json.Marshal(params)
	d.params = append(d.params, raw)

	if err, ok := d.failAt[call]; ok {
		return nil, err
	}
	if d.result != nil {
		return d.result(call), nil
	}
	return json.RawMessage(fmt.Sprintf(`{"id":"node-%d"}`, call)), nil
}

func TestSplitConfigs(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantLen      int
		wantSingular bool
		wantErr      bool
	}{
		{"single object", `{"text":"hi"}`, 1, true, false},
		{"array of two", `[{"text":"a"},{"text":"b"}]`, 2, false, false},
		{"array of one stays plural", `[{"text":"a"}]`, 1, false, false},
		{"leading whitespace", `  [{"text":"a"}]`, 1, false, false},
		{"empty array", `[]`, 0, false, true},
		{"empty payload", ``, 0, false, true},
		{"malformed array", `[{"text":]`, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configs, singular, err := SplitConfigs(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(configs) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(configs), tt.wantLen)
			}
			if singular != tt.wantSingular {
				t.Errorf("singular = %v, want %v", singular, tt.wantSingular)
			}
		})
	}
}

func TestRunPreservesOrder(t *testing.T) {
	d := &scriptedDispatcher{}
	configs := []json.RawMessage{
		json.RawMessage(`{"text":"first"}`),
		json.RawMessage(`{"text":"second"}`),
		json.RawMessage(`{"text":"third"}`),
	}

	res := Run(context.Background(), d, CreateText, configs, false)

	if len(d.calls) != 3 {
		t.Fatalf("dispatched %d commands, want 3", len(d.calls))
	}
	ids := res.NodeIDs()
	want := []string{"node-0", "node-1", "node-2"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
	for i, p := range d.params {
		if string(p) != string(configs[i]) {
			t.Errorf("call %d params = %s, want %s", i, p, configs[i])
		}
	}
}

func TestRunNoShortCircuit(t *testing.T) {
	boom := errors.New("font missing")
	d := &scriptedDispatcher{failAt: map[int]error{1: boom}}
	configs := []json.RawMessage{
		json.RawMessage(`{"text":"a"}`),
		json.RawMessage(`{"text":"b"}`),
		json.RawMessage(`{"text":"c"}`),
	}

	res := Run(context.Background(), d, CreateText, configs, false)

	if len(d.calls) != 3 {
		t.Fatalf("dispatched %d commands, want 3 (later elements still attempted)", len(d.calls))
	}
	if got := res.Succeeded(); got != 2 {
		t.Errorf("succeeded = %d, want 2", got)
	}
	if got := res.Failed(); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}

	// Results produced before the failure are preserved, not rolled back.
	if res.Elements[0].Err != nil || len(res.Elements[0].NodeIDs) != 1 {
		t.Errorf("element 0 = %+v, want preserved success", res.Elements[0])
	}
	if !errors.Is(res.Elements[1].Err, boom) {
		t.Errorf("element 1 err = %v, want %v", res.Elements[1].Err, boom)
	}

	err := res.FirstErr()
	if !errors.Is(err, boom) {
		t.Fatalf("FirstErr = %v, want wrapped %v", err, boom)
	}
}

func TestRunUnifiedSingular(t *testing.T) {
	d := &scriptedDispatcher{}
	res, err := RunUnified(context.Background(), d, CreateText, json.RawMessage(`{"text":"only"}`))
	if err != nil {
		t.Fatalf("RunUnified: %v", err)
	}
	if !res.Singular {
		t.Error("singular intent lost")
	}
	if len(res.Elements) != 1 {
		t.Fatalf("elements = %d, want 1", len(res.Elements))
	}
}

func TestExtractNodeIDs(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"single id", `{"id":"1:2"}`, []string{"1:2"}},
		{"id list", `{"ids":["1:2","1:3"]}`, []string{"1:2", "1:3"}},
		{"nested nodes", `{"nodes":[{"id":"a"},{"id":"b"}]}`, []string{"a", "b"}},
		{"container with both", `{"id":"root","nodes":[{"id":"child"}]}`, []string{"root", "child"}},
		{"no ids", `{"count":3}`, nil},
		{"empty", ``, nil},
		{"non-object", `"ok"`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractNodeIDs(json.RawMessage(tt.payload))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKnown(t *testing.T) {
	if !Known(CreateRectangle) || !Known(SetTextContent) {
		t.Error("catalog commands must be known")
	}
	if Known("drop_database") {
		t.Error("unknown command reported as known")
	}
}
