package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glyphworks/canvasbridge/internal/bridge"
	"github.com/glyphworks/canvasbridge/internal/command"
	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/validation"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// dispatchResult is the common response shape for single-command tools.
type dispatchResult struct {
	Result  json.RawMessage `json:"result"`
	NodeIDs []string        `json:"nodeIds,omitempty"`
}

// batchSummary is the response shape for unified tools. Error carries the
// first failing element's message; partial results stay in Elements either
// way, since batches are not transactional.
type batchSummary struct {
	Singular  bool                    `json:"singular"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Error     string                  `json:"error,omitempty"`
	NodeIDs   []string                `json:"nodeIds,omitempty"`
	Elements  []command.ElementResult `json:"elements"`
}

func summarize(res *command.BatchResult) *batchSummary {
	s := &batchSummary{
		Singular:  res.Singular,
		Succeeded: res.Succeeded(),
		Failed:    res.Failed(),
		NodeIDs:   res.NodeIDs(),
		Elements:  res.Elements,
	}
	if err := res.FirstErr(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// clientFor resolves which channel a tool call targets. An empty channel is
// allowed when exactly one channel is joined.
func (s *Server) clientFor(channel string) (*bridge.Client, error) {
	if channel == "" {
		joined := s.manager.Channels()
		switch len(joined) {
		case 0:
			return nil, fmt.Errorf("no channel joined; call join_channel first")
		case 1:
			channel = joined[0]
		default:
			return nil, fmt.Errorf("multiple channels joined (%v); specify channel", joined)
		}
	}

	c := s.manager.Get(channel)
	if c == nil {
		return nil, fmt.Errorf("channel %s not joined; call join_channel first", channel)
	}
	return c, nil
}

// dispatch validates the command and channel, executes one command, and
// shapes the response.
func (s *Server) dispatch(ctx context.Context, operation, channel, name string, params any) (*mcp_sdk.CallToolResult, any, error) {
	if !command.Known(name) {
		return nil, nil, fmt.Errorf("unknown command %s", name)
	}
	c, err := s.clientFor(channel)
	if err != nil {
		return nil, nil, err
	}

	ctx = context.WithValue(ctx, logger.ContextKeyChannelID, c.Channel())
	payload, err := c.Execute(ctx, name, params)
	if err != nil {
		return nil, nil, SanitizeError(err, operation)
	}
	return nil, &dispatchResult{
		Result:  payload,
		NodeIDs: command.ExtractNodeIDs(payload),
	}, nil
}

// dispatchUnified runs a one-or-many command family.
func (s *Server) dispatchUnified(ctx context.Context, operation, channel, name string, configs json.RawMessage) (*mcp_sdk.CallToolResult, any, error) {
	if !command.Known(name) {
		return nil, nil, fmt.Errorf("unknown command %s", name)
	}
	c, err := s.clientFor(channel)
	if err != nil {
		return nil, nil, err
	}

	ctx = context.WithValue(ctx, logger.ContextKeyChannelID, c.Channel())
	res, err := command.RunUnified(ctx, c, name, configs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s failed: %v", operation, err)
	}
	return nil, summarize(res), nil
}

// Tool argument shapes. Channel is optional everywhere: with a single joined
// channel it can be omitted.

type channelArgs struct {
	Channel string `json:"channel" description:"Channel identifier shown in the plugin UI"`
}

type statusArgs struct{}

type rectangleArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.RectangleParams
}

type frameArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.FrameParams
}

type unifiedArgs struct {
	Channel string          `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	Configs json.RawMessage `json:"configs" description:"One configuration object or an ordered array of them"`
}

type layoutArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.LayoutParams
}

type fillColorArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.FillColorParams
}

type moveArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.MoveParams
}

type resizeArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.ResizeParams
}

type nodeRefArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.NodeRefParams
}

type exportImageArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.ExportImageParams
}

type scanTextArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
	command.ScanTextParams
}

func (s *Server) handleJoinChannel(ctx context.Context, _ *mcp_sdk.CallToolRequest, args channelArgs) (*mcp_sdk.CallToolResult, any, error) {
	if err := validation.ValidateChannelID(args.Channel); err != nil {
		return nil, nil, err
	}

	c, err := s.manager.Join(ctx, args.Channel)
	if err != nil {
		return nil, nil, SanitizeError(err, "join_channel")
	}
	return nil, map[string]any{
		"channel": c.Channel(),
		"state":   c.State().String(),
	}, nil
}

func (s *Server) handleLeaveChannel(_ context.Context, _ *mcp_sdk.CallToolRequest, args channelArgs) (*mcp_sdk.CallToolResult, any, error) {
	if err := validation.ValidateChannelID(args.Channel); err != nil {
		return nil, nil, err
	}
	if s.manager.Get(args.Channel) == nil {
		return nil, nil, fmt.Errorf("channel %s not joined", args.Channel)
	}
	s.manager.Disconnect(args.Channel)
	return nil, map[string]any{"channel": args.Channel, "state": bridge.StateDisconnected.String()}, nil
}

func (s *Server) handleChannelStatus(_ context.Context, _ *mcp_sdk.CallToolRequest, _ statusArgs) (*mcp_sdk.CallToolResult, any, error) {
	type channelStatus struct {
		Channel string `json:"channel"`
		State   string `json:"state"`
		Pending int    `json:"pending"`
	}

	statuses := make([]channelStatus, 0)
	for _, name := range s.manager.Channels() {
		c := s.manager.Get(name)
		if c == nil {
			continue
		}
		statuses = append(statuses, channelStatus{
			Channel: name,
			State:   c.State().String(),
			Pending: c.PendingCount(),
		})
	}
	return nil, map[string]any{"channels": statuses}, nil
}

func (s *Server) handleCreateRectangle(ctx context.Context, _ *mcp_sdk.CallToolRequest, args rectangleArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.Width <= 0 || args.Height <= 0 {
		return nil, nil, fmt.Errorf("width and height must be positive")
	}
	return s.dispatch(ctx, "create_rectangle", args.Channel, command.CreateRectangle, args.RectangleParams)
}

func (s *Server) handleCreateFrame(ctx context.Context, _ *mcp_sdk.CallToolRequest, args frameArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.Width <= 0 || args.Height <= 0 {
		return nil, nil, fmt.Errorf("width and height must be positive")
	}
	if args.FillColor != nil {
		if err := validateColor(*args.FillColor); err != nil {
			return nil, nil, err
		}
	}
	return s.dispatch(ctx, "create_frame", args.Channel, command.CreateFrame, args.FrameParams)
}

func (s *Server) handleCreateText(ctx context.Context, _ *mcp_sdk.CallToolRequest, args unifiedArgs) (*mcp_sdk.CallToolResult, any, error) {
	configs, _, err := command.SplitConfigs(args.Configs)
	if err != nil {
		return nil, nil, err
	}
	for i, cfg := range configs {
		var p command.TextParams
		if err := json.Unmarshal(cfg, &p); err != nil {
			return nil, nil, fmt.Errorf("configuration %d is invalid: %v", i, err)
		}
		if p.Text == "" {
			return nil, nil, fmt.Errorf("configuration %d is missing text", i)
		}
	}
	return s.dispatchUnified(ctx, "create_text", args.Channel, command.CreateText, args.Configs)
}

func (s *Server) handleSetLayout(ctx context.Context, _ *mcp_sdk.CallToolRequest, args layoutArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	switch args.Mode {
	case "NONE", "HORIZONTAL", "VERTICAL":
	default:
		return nil, nil, fmt.Errorf("mode must be NONE, HORIZONTAL, or VERTICAL")
	}
	return s.dispatch(ctx, "set_layout", args.Channel, command.SetLayout, args.LayoutParams)
}

func (s *Server) handleSetFillColor(ctx context.Context, _ *mcp_sdk.CallToolRequest, args fillColorArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	if err := validateColor(args.Color); err != nil {
		return nil, nil, err
	}
	return s.dispatch(ctx, "set_fill_color", args.Channel, command.SetFillColor, args.FillColorParams)
}

func (s *Server) handleMoveNode(ctx context.Context, _ *mcp_sdk.CallToolRequest, args moveArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	return s.dispatch(ctx, "move_node", args.Channel, command.MoveNode, args.MoveParams)
}

func (s *Server) handleResizeNode(ctx context.Context, _ *mcp_sdk.CallToolRequest, args resizeArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	if args.Width <= 0 || args.Height <= 0 {
		return nil, nil, fmt.Errorf("width and height must be positive")
	}
	return s.dispatch(ctx, "resize_node", args.Channel, command.ResizeNode, args.ResizeParams)
}

func (s *Server) handleDeleteNode(ctx context.Context, _ *mcp_sdk.CallToolRequest, args nodeRefArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	return s.dispatch(ctx, "delete_node", args.Channel, command.DeleteNode, args.NodeRefParams)
}

func (s *Server) handleGetDocumentInfo(ctx context.Context, _ *mcp_sdk.CallToolRequest, args channelOnlyArgs) (*mcp_sdk.CallToolResult, any, error) {
	return s.dispatch(ctx, "get_document_info", args.Channel, command.GetDocumentInfo, struct{}{})
}

func (s *Server) handleGetSelection(ctx context.Context, _ *mcp_sdk.CallToolRequest, args channelOnlyArgs) (*mcp_sdk.CallToolResult, any, error) {
	return s.dispatch(ctx, "get_selection", args.Channel, command.GetSelection, struct{}{})
}

func (s *Server) handleExportCSS(ctx context.Context, _ *mcp_sdk.CallToolRequest, args nodeRefArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	return s.dispatch(ctx, "export_css", args.Channel, command.ExportCSS, args.NodeRefParams)
}

func (s *Server) handleExportNodeImage(ctx context.Context, _ *mcp_sdk.CallToolRequest, args exportImageArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	switch args.Format {
	case "", "PNG", "JPG", "SVG", "PDF":
	default:
		return nil, nil, fmt.Errorf("format must be PNG, JPG, SVG, or PDF")
	}
	if args.Scale < 0 {
		return nil, nil, fmt.Errorf("scale cannot be negative")
	}
	return s.dispatch(ctx, "export_node_image", args.Channel, command.ExportNodeImage, args.ExportImageParams)
}

func (s *Server) handleScanTextNodes(ctx context.Context, _ *mcp_sdk.CallToolRequest, args scanTextArgs) (*mcp_sdk.CallToolResult, any, error) {
	if args.NodeID == "" {
		return nil, nil, fmt.Errorf("nodeId is required")
	}
	return s.dispatch(ctx, "scan_text_nodes", args.Channel, command.ScanTextNodes, args.ScanTextParams)
}

func (s *Server) handleSetTextContent(ctx context.Context, _ *mcp_sdk.CallToolRequest, args unifiedArgs) (*mcp_sdk.CallToolResult, any, error) {
	configs, _, err := command.SplitConfigs(args.Configs)
	if err != nil {
		return nil, nil, err
	}
	for i, cfg := range configs {
		var p command.TextContentParams
		if err := json.Unmarshal(cfg, &p); err != nil {
			return nil, nil, fmt.Errorf("configuration %d is invalid: %v", i, err)
		}
		if p.NodeID == "" {
			return nil, nil, fmt.Errorf("configuration %d is missing nodeId", i)
		}
	}
	return s.dispatchUnified(ctx, "set_text_content", args.Channel, command.SetTextContent, args.Configs)
}

type channelOnlyArgs struct {
	Channel string `json:"channel,omitempty" description:"Target channel (optional when only one is joined)"`
}

func validateColor(c command.Color) error {
	for _, v := range []float64{c.R, c.G, c.B, c.A} {
		if v < 0 || v > 1 {
			return fmt.Errorf("color components must be between 0 and 1")
		}
	}
	return nil
}
