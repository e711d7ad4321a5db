package server

// QueryRequest is the body of POST /api/query and POST /api/plan.
type QueryRequest struct {
	Query string `json:"query"`
}

// ToolsResponse lists the registered tool cards grouped by tool.
type ToolsResponse struct {
	Tools map[string][]ToolFunction `json:"tools"`
}

// ToolFunction is one callable function of a tool.
type ToolFunction struct {
	Function    string   `json:"function"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
	Required    []string `json:"required,omitempty"`
}
