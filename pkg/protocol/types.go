package protocol

import (
	"encoding/json"
)

// ProtocolVersion is the MCP protocol revision this client speaks
const ProtocolVersion = "2024-11-05"

// ClientName identifies this host in the initialize handshake
const ClientName = "agentic-platform-mcp"

// ClientVersion is sent alongside ClientName during the handshake
const ClientVersion = "0.1.0"

// Method names required by the wire contract
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "notifications/initialized"
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"
	MethodListPrompts   = "prompts/list"
)

// CapabilityKind distinguishes the three discoverable capability categories
type CapabilityKind string

const (
	CapabilityTool     CapabilityKind = "tool"
	CapabilityResource CapabilityKind = "resource"
	CapabilityPrompt   CapabilityKind = "prompt"
)

// CapabilityDescriptor is a named, versioned description of one invocable
// tool, readable resource, or reusable prompt. Immutable once discovered for
// a session generation; invalidated and re-fetched on reconnect.
type CapabilityDescriptor struct {
	Kind        CapabilityKind  `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	URI         string          `json:"uri,omitempty"` // resources only
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Generation  int64           `json:"generation"`
}

// CapabilitySet is the cached discovery result for one session generation.
// A category with Unavailable=true failed its last discovery cycle and is
// retried on the next one.
type CapabilitySet struct {
	Generation int64                  `json:"generation"`
	Tools      []CapabilityDescriptor `json:"tools"`
	Resources  []CapabilityDescriptor `json:"resources"`
	Prompts    []CapabilityDescriptor `json:"prompts"`

	ToolsUnavailable     bool `json:"tools_unavailable,omitempty"`
	ResourcesUnavailable bool `json:"resources_unavailable,omitempty"`
	PromptsUnavailable   bool `json:"prompts_unavailable,omitempty"`
}

// Tool returns the tool descriptor with the given name, if discovered
func (cs *CapabilitySet) Tool(name string) (CapabilityDescriptor, bool) {
	for _, t := range cs.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return CapabilityDescriptor{}, false
}

// InitializeParams is the payload for the initialize handshake
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// ClientInfo identifies the connecting client
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the provider's handshake response
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ClientInfo             `json:"serverInfo"`
}

// NewInitializeParams builds the handshake payload for this client
func NewInitializeParams() InitializeParams {
	return InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
		ClientInfo: ClientInfo{
			Name:    ClientName,
			Version: ClientVersion,
		},
	}
}

// CallToolParams is the payload for tools/call
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ReadResourceParams is the payload for resources/read
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ListToolsResult is the payload of a tools/list response
type ListToolsResult struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

// ListResourcesResult is the payload of a resources/list response
type ListResourcesResult struct {
	Resources []struct {
		URI         string `json:"uri"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"resources"`
}

// ListPromptsResult is the payload of a prompts/list response
type ListPromptsResult struct {
	Prompts []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"prompts"`
}
