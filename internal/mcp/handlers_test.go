package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glyphworks/canvasbridge/internal/bridge"
	"github.com/glyphworks/canvasbridge/internal/relay"
	"github.com/glyphworks/canvasbridge/internal/wire"
	"github.com/gorilla/websocket"
)

// testHarness is a relay, a scripted plugin joined to it, and an MCP server
// dispatching through a real bridge manager.
type testHarness struct {
	server  *Server
	manager *bridge.Manager
	url     string
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	rs := relay.NewServer(relay.DefaultConfig())
	ts := httptest.NewServer(rs.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	cfg := bridge.DefaultConfig()
	cfg.RelayURL = url
	cfg.AutoReconnect = false
	cfg.DefaultTimeout = 5 * time.Second
	cfg.PingInterval = 0

	m := bridge.NewManager(cfg)
	t.Cleanup(m.DisconnectAll)

	return &testHarness{server: NewServer(m), manager: m, url: url}
}

// startPlugin joins a scripted plugin to the channel that echoes every
// command back as a successful result carrying one node id.
func (h *testHarness) startPlugin(t *testing.T, channel string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatalf("plugin dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	join, _ := wire.Encode(wire.NewJoin(channel))
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("plugin join: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("plugin join ack: %v", err)
	}

	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(10 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := wire.Decode(data)
			if err != nil || env.Type != wire.MessageCommandRequest {
				continue
			}
			res, _ := wire.NewCommandResult(env.ID, map[string]any{
				"id":      "10:1",
				"command": env.Command,
			})
			out, _ := wire.Encode(res)
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}()
}

func call(t *testing.T, s *Server, tool string, args string) (any, error) {
	t.Helper()
	return s.GetRegistry().CallTool(context.Background(), tool, json.RawMessage(args))
}

func TestJoinChannelAndDispatch(t *testing.T) {
	h := newHarness(t)
	h.startPlugin(t, "design-1")

	out, err := call(t, h.server, "join_channel", `{"channel":"design-1"}`)
	if err != nil {
		t.Fatalf("join_channel: %v", err)
	}
	if m := out.(map[string]any); m["state"] != "connected" {
		t.Fatalf("join result = %v", out)
	}

	out, err = call(t, h.server, "create_rectangle", `{"x":0,"y":0,"width":100,"height":50}`)
	if err != nil {
		t.Fatalf("create_rectangle: %v", err)
	}
	res := out.(*dispatchResult)
	if len(res.NodeIDs) != 1 || res.NodeIDs[0] != "10:1" {
		t.Errorf("nodeIds = %v, want [10:1]", res.NodeIDs)
	}
}

func TestJoinChannelRejectsInvalidID(t *testing.T) {
	h := newHarness(t)
	if _, err := call(t, h.server, "join_channel", `{"channel":"bad channel"}`); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidationRunsBeforeDispatch(t *testing.T) {
	h := newHarness(t)
	// No channel joined: a parameter error must surface as such, never as a
	// connection error.
	_, err := call(t, h.server, "create_rectangle", `{"x":0,"y":0,"width":-5,"height":50}`)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "width") {
		t.Errorf("err = %v, want width validation", err)
	}

	_, err = call(t, h.server, "set_layout", `{"nodeId":"1:2","mode":"DIAGONAL"}`)
	if err == nil || !strings.Contains(err.Error(), "mode") {
		t.Errorf("err = %v, want mode validation", err)
	}

	_, err = call(t, h.server, "set_fill_color", `{"nodeId":"1:2","color":{"r":2,"g":0,"b":0}}`)
	if err == nil || !strings.Contains(err.Error(), "color") {
		t.Errorf("err = %v, want color validation", err)
	}
}

func TestDispatchRejectsUnknownCommand(t *testing.T) {
	h := newHarness(t)

	// The catalog check runs before channel resolution, so an out-of-catalog
	// name fails as such even with no channel joined.
	_, _, err := h.server.dispatch(context.Background(), "bogus_tool", "", "teleport_node", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v, want unknown command", err)
	}

	_, _, err = h.server.dispatchUnified(context.Background(), "bogus_tool", "", "teleport_node", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unified err = %v, want unknown command", err)
	}
}

func TestDispatchWithoutChannelFails(t *testing.T) {
	h := newHarness(t)
	_, err := call(t, h.server, "get_selection", `{}`)
	if err == nil || !strings.Contains(err.Error(), "join_channel") {
		t.Errorf("err = %v, want join_channel hint", err)
	}
}

func TestUnifiedCreateText(t *testing.T) {
	h := newHarness(t)
	h.startPlugin(t, "design-2")
	if _, err := call(t, h.server, "join_channel", `{"channel":"design-2"}`); err != nil {
		t.Fatalf("join_channel: %v", err)
	}

	out, err := call(t, h.server, "create_text",
		`{"configs":[{"x":0,"y":0,"text":"Title"},{"x":0,"y":40,"text":"Body"}]}`)
	if err != nil {
		t.Fatalf("create_text: %v", err)
	}
	sum := out.(*batchSummary)
	if sum.Singular {
		t.Error("array submission reported as singular")
	}
	if sum.Succeeded != 2 || sum.Failed != 0 {
		t.Errorf("succeeded/failed = %d/%d, want 2/0", sum.Succeeded, sum.Failed)
	}
	if len(sum.NodeIDs) != 2 {
		t.Errorf("nodeIds = %v, want 2 ids", sum.NodeIDs)
	}

	out, err = call(t, h.server, "create_text", `{"configs":{"x":0,"y":0,"text":"Solo"}}`)
	if err != nil {
		t.Fatalf("singular create_text: %v", err)
	}
	if sum := out.(*batchSummary); !sum.Singular || len(sum.Elements) != 1 {
		t.Errorf("singular summary = %+v", sum)
	}
}

// startFlakyPlugin joins a plugin that rejects any text command whose text is
// "boom" and resolves everything else with one node id.
func (h *testHarness) startFlakyPlugin(t *testing.T, channel string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatalf("plugin dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	join, _ := wire.Encode(wire.NewJoin(channel))
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		t.Fatalf("plugin join: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("plugin join ack: %v", err)
	}

	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(10 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := wire.Decode(data)
			if err != nil || env.Type != wire.MessageCommandRequest {
				continue
			}
			var p struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(env.Params, &p)

			var out []byte
			if p.Text == "boom" {
				out, _ = wire.Encode(wire.NewCommandError(env.ID, "font missing"))
			} else {
				res, _ := wire.NewCommandResult(env.ID, map[string]any{"id": "10:9"})
				out, _ = wire.Encode(res)
			}
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}()
}

func TestUnifiedPartialFailureSurfacesFirstError(t *testing.T) {
	h := newHarness(t)
	h.startFlakyPlugin(t, "design-5")
	if _, err := call(t, h.server, "join_channel", `{"channel":"design-5"}`); err != nil {
		t.Fatalf("join_channel: %v", err)
	}

	out, err := call(t, h.server, "create_text",
		`{"configs":[{"x":0,"y":0,"text":"ok"},{"x":0,"y":20,"text":"boom"},{"x":0,"y":40,"text":"also ok"}]}`)
	if err != nil {
		t.Fatalf("create_text: %v", err)
	}
	sum := out.(*batchSummary)
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 2/1", sum.Succeeded, sum.Failed)
	}
	if !strings.Contains(sum.Error, "element 1") || !strings.Contains(sum.Error, "font missing") {
		t.Errorf("aggregate error = %q, want first failing element surfaced", sum.Error)
	}
	// The third element ran despite the second failing.
	if len(sum.Elements) != 3 || sum.Elements[2].Error != "" || len(sum.Elements[2].NodeIDs) != 1 {
		t.Errorf("elements = %+v, want third attempted and resolved", sum.Elements)
	}
	if len(sum.NodeIDs) != 2 {
		t.Errorf("nodeIds = %v, want ids from the two successes", sum.NodeIDs)
	}
}

func TestCreateTextRequiresText(t *testing.T) {
	h := newHarness(t)
	_, err := call(t, h.server, "create_text", `{"configs":[{"x":0,"y":0,"text":"ok"},{"x":1,"y":1}]}`)
	if err == nil || !strings.Contains(err.Error(), "configuration 1") {
		t.Errorf("err = %v, want element-indexed validation error", err)
	}
}

func TestChannelStatusAndLeave(t *testing.T) {
	h := newHarness(t)
	h.startPlugin(t, "design-3")
	if _, err := call(t, h.server, "join_channel", `{"channel":"design-3"}`); err != nil {
		t.Fatalf("join_channel: %v", err)
	}

	out, err := call(t, h.server, "channel_status", `{}`)
	if err != nil {
		t.Fatalf("channel_status: %v", err)
	}
	data, _ := json.Marshal(out)
	if !strings.Contains(string(data), `"design-3"`) || !strings.Contains(string(data), `"connected"`) {
		t.Errorf("status = %s", data)
	}

	if _, err := call(t, h.server, "leave_channel", `{"channel":"design-3"}`); err != nil {
		t.Fatalf("leave_channel: %v", err)
	}
	if h.manager.Get("design-3") != nil {
		t.Error("channel still registered after leave")
	}

	if _, err := call(t, h.server, "leave_channel", `{"channel":"design-3"}`); err == nil {
		t.Error("leaving an unjoined channel must error")
	}
}

func TestSanitizeErrorPassesRemoteThrough(t *testing.T) {
	remote := bridge.KindRemoteError
	err := SanitizeError(&bridge.Error{Kind: remote, Message: "node 1:2 not found"}, "delete_node")
	if err == nil || !strings.Contains(err.Error(), "node 1:2 not found") {
		t.Errorf("remote message must pass through, got %v", err)
	}

	err = SanitizeError(&bridge.Error{Kind: bridge.KindNotConnected, Message: "channel x is disconnected"}, "move_node")
	if err == nil || !strings.Contains(err.Error(), "join_channel") {
		t.Errorf("not_connected should hint join_channel, got %v", err)
	}

	err = SanitizeError(&bridge.Error{Kind: bridge.KindTransportError, Message: "write tcp: broken pipe with token abc"}, "move_node")
	if err == nil || strings.Contains(err.Error(), "token") {
		t.Errorf("sensitive detail leaked: %v", err)
	}
}

func TestAllCatalogToolsRegistered(t *testing.T) {
	h := newHarness(t)
	want := []string{
		"join_channel", "leave_channel", "channel_status",
		"create_rectangle", "create_frame", "create_text",
		"set_layout", "set_fill_color", "move_node", "resize_node",
		"delete_node", "get_document_info", "get_selection",
		"export_css", "export_node_image", "scan_text_nodes", "set_text_content",
	}
	for _, name := range want {
		if _, ok := h.server.GetRegistry().GetTool(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}
