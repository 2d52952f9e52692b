// Package tools implements the tool registry and the builtin tool set served
// under the stagehand.builtin server id.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// BuiltinServerID is the server id of the builtin tool set
const BuiltinServerID = "stagehand.builtin"

// ErrToolNotFound is returned when a server/tool pair is not registered
var ErrToolNotFound = errors.New("tool not found")

// Handler is a tool body
type Handler func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// Tool is one registered tool
type Tool struct {
	// ServerID is the server the tool belongs to
	ServerID string `json:"server_id"`

	// Name is the tool name, unique within the server
	Name string `json:"name"`

	// Description says what the tool does
	Description string `json:"description"`

	// Handler executes the tool. Not serialized.
	Handler Handler `json:"-"`
}

// Registry holds the registered tools, keyed by server and name
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func toolKey(serverID, name string) string {
	return serverID + "/" + name
}

// Register adds or replaces a tool
func (r *Registry) Register(tool Tool) error {
	if tool.ServerID == "" || tool.Name == "" {
		return fmt.Errorf("tool requires a server id and a name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q requires a handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[toolKey(tool.ServerID, tool.Name)] = tool
	return nil
}

// Get returns a registered tool
func (r *Registry) Get(serverID, name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[toolKey(serverID, name)]
	if !ok {
		return Tool{}, ErrToolNotFound
	}
	return tool, nil
}

// List returns the tools of one server, sorted by name
func (r *Registry) List(serverID string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []Tool
	for _, tool := range r.tools {
		if tool.ServerID == serverID {
			tools = append(tools, tool)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}
