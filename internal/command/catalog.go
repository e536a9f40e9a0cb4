// Package command defines the catalog of design-tool commands the agent can
// dispatch, their typed parameter shapes, and the unified executor for
// command families that accept one or many configurations. The bridge stays
// parameter-agnostic; everything here sits in front of it.
package command

import "encoding/json"

// Command names recognized by the plugin runtime.
const (
	CreateRectangle = "create_rectangle"
	CreateFrame     = "create_frame"
	CreateText      = "create_text"
	SetLayout       = "set_layout"
	SetFillColor    = "set_fill_color"
	MoveNode        = "move_node"
	ResizeNode      = "resize_node"
	DeleteNode      = "delete_node"
	GetDocumentInfo = "get_document_info"
	GetSelection    = "get_selection"
	ExportCSS       = "export_css"
	ExportNodeImage = "export_node_image"
	ScanTextNodes   = "scan_text_nodes"
	SetTextContent  = "set_text_content"
)

// Known reports whether name is in the catalog.
func Known(name string) bool {
	switch name {
	case CreateRectangle, CreateFrame, CreateText, SetLayout, SetFillColor,
		MoveNode, ResizeNode, DeleteNode, GetDocumentInfo, GetSelection,
		ExportCSS, ExportNodeImage, ScanTextNodes, SetTextContent:
		return true
	}
	return false
}

// Color is an RGBA color with components in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a,omitempty"`
}

// RectangleParams creates a rectangle node.
type RectangleParams struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Name     string  `json:"name,omitempty"`
	ParentID string  `json:"parentId,omitempty"`
}

// FrameParams creates a frame node.
type FrameParams struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Name      string  `json:"name,omitempty"`
	ParentID  string  `json:"parentId,omitempty"`
	FillColor *Color  `json:"fillColor,omitempty"`
}

// TextParams creates a text node. CreateText is a unified command: the MCP
// layer accepts one TextParams or an ordered array of them.
type TextParams struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Text       string  `json:"text"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontWeight int     `json:"fontWeight,omitempty"`
	FontColor  *Color  `json:"fontColor,omitempty"`
	Name       string  `json:"name,omitempty"`
	ParentID   string  `json:"parentId,omitempty"`
}

// LayoutParams configures auto-layout on a container node.
type LayoutParams struct {
	NodeID           string  `json:"nodeId"`
	Mode             string  `json:"mode"` // NONE, HORIZONTAL, VERTICAL
	ItemSpacing      float64 `json:"itemSpacing,omitempty"`
	PaddingTop       float64 `json:"paddingTop,omitempty"`
	PaddingRight     float64 `json:"paddingRight,omitempty"`
	PaddingBottom    float64 `json:"paddingBottom,omitempty"`
	PaddingLeft      float64 `json:"paddingLeft,omitempty"`
	PrimaryAlign     string  `json:"primaryAxisAlignItems,omitempty"`
	CounterAlign     string  `json:"counterAxisAlignItems,omitempty"`
	LayoutWrap       string  `json:"layoutWrap,omitempty"`
	SizingHorizontal string  `json:"layoutSizingHorizontal,omitempty"`
	SizingVertical   string  `json:"layoutSizingVertical,omitempty"`
}

// FillColorParams sets a node's solid fill.
type FillColorParams struct {
	NodeID string `json:"nodeId"`
	Color  Color  `json:"color"`
}

// MoveParams repositions a node.
type MoveParams struct {
	NodeID string  `json:"nodeId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// ResizeParams resizes a node.
type ResizeParams struct {
	NodeID string  `json:"nodeId"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeRefParams addresses a single node, e.g. for delete or CSS export.
type NodeRefParams struct {
	NodeID string `json:"nodeId"`
}

// ExportImageParams exports a node as an image.
type ExportImageParams struct {
	NodeID string  `json:"nodeId"`
	Format string  `json:"format,omitempty"` // PNG, JPG, SVG, PDF
	Scale  float64 `json:"scale,omitempty"`
}

// ScanTextParams scans a subtree for text nodes, optionally chunked for
// progress reporting on large documents.
type ScanTextParams struct {
	NodeID    string `json:"nodeId"`
	UseChunks bool   `json:"useChunking,omitempty"`
	ChunkSize int    `json:"chunkSize,omitempty"`
}

// TextContentParams replaces the characters of one text node. SetTextContent
// is unified like CreateText: one or many per call.
type TextContentParams struct {
	NodeID string `json:"nodeId"`
	Text   string `json:"text"`
}

// nodeResult is the shape plugins use to report produced node identifiers.
// A single result may carry zero, one, or many ids.
type nodeResult struct {
	ID    string   `json:"id,omitempty"`
	IDs   []string `json:"ids,omitempty"`
	Nodes []struct {
		ID string `json:"id"`
	} `json:"nodes,omitempty"`
}

// ExtractNodeIDs pulls the produced node identifiers out of a command result
// payload, in payload order. Payloads without identifiers yield nil, which is
// valid: not every command creates nodes.
func ExtractNodeIDs(payload json.RawMessage) []string {
	if len(payload) == 0 {
		return nil
	}
	var res nodeResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil
	}

	var ids []string
	if res.ID != "" {
		ids = append(ids, res.ID)
	}
	ids = append(ids, res.IDs...)
	for _, n := range res.Nodes {
		if n.ID != "" {
			ids = append(ids, n.ID)
		}
	}
	return ids
}
