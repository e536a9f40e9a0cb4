package mcp

// registerAllTools registers the channel lifecycle tools and the command
// catalog with the registry. Input schemas are generated from the argument
// structs.
func (s *Server) registerAllTools(r *Registry) {
	Register(r, ToolDef{
		Name:        "join_channel",
		Description: "Join a design-tool channel. The channel identifier is shown in the plugin's connection panel. Must be called before any canvas command.",
	}, s.handleJoinChannel)

	Register(r, ToolDef{
		Name:        "leave_channel",
		Description: "Disconnect from a channel. In-flight commands on it fail with a connection-closed error.",
	}, s.handleLeaveChannel)

	Register(r, ToolDef{
		Name:        "channel_status",
		Description: "List joined channels with their connection state and in-flight command counts.",
	}, s.handleChannelStatus)

	Register(r, ToolDef{
		Name:        "create_rectangle",
		Description: "Create a rectangle node at the given position and size.",
	}, s.handleCreateRectangle)

	Register(r, ToolDef{
		Name:        "create_frame",
		Description: "Create a frame node, optionally with a solid fill color.",
	}, s.handleCreateFrame)

	Register(r, ToolDef{
		Name:        "create_text",
		Description: "Create one or many text nodes. Pass a single configuration object or an ordered array; array elements are created in order and results are aggregated.",
	}, s.handleCreateText)

	Register(r, ToolDef{
		Name:        "set_layout",
		Description: "Configure auto-layout on a container node (mode, spacing, padding, alignment).",
	}, s.handleSetLayout)

	Register(r, ToolDef{
		Name:        "set_fill_color",
		Description: "Set a node's solid fill color (RGBA components in 0-1).",
	}, s.handleSetFillColor)

	Register(r, ToolDef{
		Name:        "move_node",
		Description: "Move a node to a new position.",
	}, s.handleMoveNode)

	Register(r, ToolDef{
		Name:        "resize_node",
		Description: "Resize a node.",
	}, s.handleResizeNode)

	Register(r, ToolDef{
		Name:        "delete_node",
		Description: "Delete a node from the document.",
	}, s.handleDeleteNode)

	Register(r, ToolDef{
		Name:        "get_document_info",
		Description: "Get information about the open document.",
	}, s.handleGetDocumentInfo)

	Register(r, ToolDef{
		Name:        "get_selection",
		Description: "Get the nodes currently selected in the design tool.",
	}, s.handleGetSelection)

	Register(r, ToolDef{
		Name:        "export_css",
		Description: "Export CSS for a node.",
	}, s.handleExportCSS)

	Register(r, ToolDef{
		Name:        "export_node_image",
		Description: "Export a node as an image (PNG, JPG, SVG, or PDF).",
	}, s.handleExportNodeImage)

	Register(r, ToolDef{
		Name:        "scan_text_nodes",
		Description: "Scan a subtree for text nodes. Large scans report progress in chunks.",
	}, s.handleScanTextNodes)

	Register(r, ToolDef{
		Name:        "set_text_content",
		Description: "Replace the text of one or many text nodes. Pass a single {nodeId, text} object or an ordered array of them.",
	}, s.handleSetTextContent)
}
