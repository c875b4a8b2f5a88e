package toolserver

import (
	"context"
	"fmt"
	"time"
)

// Multiplexer aggregates N child tool servers into one namespace and routes
// calls with retries.
type Multiplexer struct {
	children map[string]toolChild
	catalog  map[string]string // tool name -> owning child id
	specs    map[string]ToolSpec
}

// Start spawns each configured child server, requests its tool catalog, and
// builds the aggregated tool_name -> (server, schema) map. Tool-name
// collisions across servers are rejected.
func Start(ctx context.Context, configs []ServerConfig) (*Multiplexer, error) {
	m := newMultiplexer()
	for _, cfg := range configs {
		c, err := startChild(cfg)
		if err != nil {
			m.Close()
			return nil, err
		}
		if err := m.register(ctx, cfg.ID, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newMultiplexer() *Multiplexer {
	return &Multiplexer{
		children: make(map[string]toolChild),
		catalog:  make(map[string]string),
		specs:    make(map[string]ToolSpec),
	}
}

func (m *Multiplexer) register(ctx context.Context, id string, c toolChild) error {
	m.children[id] = c
	tools, err := c.listTools(ctx)
	if err != nil {
		m.Close()
		return fmt.Errorf("toolserver: list tools for %s: %w", id, err)
	}
	for _, spec := range tools {
		if owner, dup := m.catalog[spec.Name]; dup {
			m.Close()
			return fmt.Errorf("toolserver: tool name %q registered by both %s and %s", spec.Name, owner, id)
		}
		m.catalog[spec.Name] = id
		m.specs[spec.Name] = spec
	}
	return nil
}

// ListTools returns the aggregated tool catalog.
func (m *Multiplexer) ListTools() []ToolSpec {
	out := make([]ToolSpec, 0, len(m.specs))
	for _, spec := range m.specs {
		out = append(out, spec)
	}
	return out
}

// HasTool reports whether name is a registered tool.
func (m *Multiplexer) HasTool(name string) bool {
	_, ok := m.catalog[name]
	return ok
}

var retryDelays = []time.Duration{
	500 * time.Millisecond,
	1000 * time.Millisecond,
	1500 * time.Millisecond,
}

// Call routes a call to the owning child server with up to 3 retries and
// linear backoff (0.5s, 1.0s, 1.5s) on any failure, transport or tool-level
// (child.callTool turns a ToolResult.IsError response into an error for
// exactly this reason). Once retries are exhausted the last failure -
// including a *ToolCallError - is returned to the caller.
func (m *Multiplexer) Call(ctx context.Context, name string, args []any) (*ToolResult, error) {
	childID, ok := m.catalog[name]
	if !ok {
		return nil, fmt.Errorf("toolserver: unknown tool %q", name)
	}
	c := m.children[childID]

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt-1]):
			}
		}
		result, err := c.callTool(ctx, name, args)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("toolserver: call %q failed after %d attempts: %w", name, len(retryDelays)+1, lastErr)
}

// Close terminates all child processes.
func (m *Multiplexer) Close() {
	for _, c := range m.children {
		_ = c.close()
	}
}
