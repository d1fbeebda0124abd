// Package nodes exposes the client as a set of plugin-host operations. Each
// node maps loosely-typed host arguments onto the typed client API; nothing
// in this package reaches into client internals, so hosts with different
// calling conventions can wrap the same core.
package nodes

import "fmt"

// Node represents one adapter operation.
type Node interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(args map[string]interface{}) (map[string]interface{}, error)
	ToSchema() map[string]interface{}
}

// BaseNode is the shared embed for node implementations.
type BaseNode struct{}

// GenerateSchema converts the node to function schema format.
func GenerateSchema(node Node) map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        node.Name(),
			"description": node.Description(),
			"parameters":  node.Parameters(),
		},
	}
}

// Registry holds the nodes a host may call.
type Registry struct {
	nodes map[string]Node
}

// NewRegistry returns an empty node registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]Node),
	}
}

// Register makes a node callable by name.
func (r *Registry) Register(node Node) {
	r.nodes[node.Name()] = node
}

// Get returns a node by name.
func (r *Registry) Get(name string) (Node, bool) {
	node, ok := r.nodes[name]
	return node, ok
}

// Execute runs the named node with the host's arguments.
func (r *Registry) Execute(name string, args map[string]interface{}) (map[string]interface{}, error) {
	node, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", name)
	}
	return node.Execute(args)
}

// GetDefinitions renders every registered node as a function schema.
func (r *Registry) GetDefinitions() []interface{} {
	defs := make([]interface{}, 0, len(r.nodes))
	for _, node := range r.nodes {
		defs = append(defs, node.ToSchema())
	}
	return defs
}
