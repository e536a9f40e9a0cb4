package wire

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewCommandID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCommandID()
		if err := ValidateCommandID(id); err != nil {
			t.Fatalf("generated id failed validation: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate command id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateCommandID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid uuid", NewCommandID(), false},
		{"empty", "", true},
		{"not a uuid", "cmd-123", true},
		{"truncated uuid", "123e4567-e89b-12d3-a456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCommandID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestCommandRequestRoundTrip(t *testing.T) {
	id := NewCommandID()
	params := map[string]any{
		"x":      float64(10),
		"y":      float64(20),
		"width":  float64(100),
		"height": float64(50),
		"name":   "hero-box",
	}

	env, err := NewCommandRequest("chan-a1b2", id, "create_rectangle", params)
	if err != nil {
		t.Fatalf("NewCommandRequest() error = %v", err)
	}

	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if decoded.Type != MessageCommandRequest {
		t.Errorf("Type = %q, want %q", decoded.Type, MessageCommandRequest)
	}
	if decoded.ID != id {
		t.Errorf("ID = %q, want %q", decoded.ID, id)
	}
	if decoded.Command != "create_rectangle" {
		t.Errorf("Command = %q, want create_rectangle", decoded.Command)
	}
	if decoded.Channel != "chan-a1b2" {
		t.Errorf("Channel = %q, want chan-a1b2", decoded.Channel)
	}

	var gotParams map[string]any
	if err := json.Unmarshal(decoded.Params, &gotParams); err != nil {
		t.Fatalf("params did not survive round trip: %v", err)
	}
	for k, want := range params {
		if gotParams[k] != want {
			t.Errorf("params[%q] = %v, want %v", k, gotParams[k], want)
		}
	}
}

func TestCommandRequestEncodingError(t *testing.T) {
	// Channels are not JSON-serializable; the codec must fail before send.
	_, err := NewCommandRequest("chan", NewCommandID(), "create_text", map[string]any{
		"bad": make(chan int),
	})
	if err == nil {
		t.Fatal("expected encoding error for unserializable params")
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	validID := NewCommandID()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{nope"},
		{"missing type", `{"id":"` + validID + `"}`},
		{"unknown type", `{"type":"mystery"}`},
		{"request without id", `{"type":"command_request","command":"create_text"}`},
		{"request without command", `{"type":"command_request","id":"` + validID + `"}`},
		{"request with bogus id", `{"type":"command_request","id":"abc","command":"x"}`},
		{"result without success", `{"type":"command_result","id":"` + validID + `"}`},
		{"progress bad status", `{"type":"progress_event","id":"` + validID + `","status":"almost"}`},
		{"progress out of range", `{"type":"progress_event","id":"` + validID + `","status":"in_progress","progress":250}`},
		{"join without channel", `{"type":"join"}`},
		{"settings without payload", `{"type":"init_settings"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err == nil {
				t.Errorf("Decode(%s) succeeded, want error", tt.raw)
			}
		})
	}
}

func TestDecodeProgressEvent(t *testing.T) {
	id := NewCommandID()
	raw := `{"type":"progress_event","id":"` + id + `","progress":45,"status":"in_progress","message":"processing chunk 2/5"}`

	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	ev := ProgressFromEnvelope(env)
	if ev.CommandID != id {
		t.Errorf("CommandID = %q, want %q", ev.CommandID, id)
	}
	if ev.Progress != 45 {
		t.Errorf("Progress = %d, want 45", ev.Progress)
	}
	if ev.Status != StatusInProgress {
		t.Errorf("Status = %q, want in_progress", ev.Status)
	}
	if ev.Status.Terminal() {
		t.Error("in_progress must not be terminal")
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusError.Terminal() {
		t.Error("completed and error must be terminal")
	}
	if StatusStarted.Terminal() || StatusInProgress.Terminal() {
		t.Error("started and in_progress must not be terminal")
	}
}

func TestCommandResultHelpers(t *testing.T) {
	id := NewCommandID()

	env, err := NewCommandResult(id, map[string]any{"node_ids": []string{"1:2"}})
	if err != nil {
		t.Fatalf("NewCommandResult() error = %v", err)
	}
	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Success == nil || !*decoded.Success {
		t.Error("success result lost its success flag")
	}
	if !strings.Contains(string(decoded.Result), "1:2") {
		t.Errorf("result payload lost: %s", decoded.Result)
	}

	errEnv := NewCommandError(id, "node not found")
	data, err = Encode(errEnv)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err = Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Success == nil || *decoded.Success {
		t.Error("error result must carry success=false")
	}
	if decoded.Error != "node not found" {
		t.Errorf("Error = %q, want %q", decoded.Error, "node not found")
	}
}
