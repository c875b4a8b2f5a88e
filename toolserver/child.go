package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
)

// toolChild is the subset of child behavior the multiplexer depends on, so
// tests can substitute an in-process fake instead of spawning a real
// process.
type toolChild interface {
	listTools(ctx context.Context) ([]ToolSpec, error)
	callTool(ctx context.Context, name string, args []any) (*ToolResult, error)
	close() error
}

// child manages one spawned tool-server process and its line-oriented
// JSON-RPC channel. Calls on the same child are serialized by mu: each call
// holds the lock from send to receive, matching the "per-child mutex"
// policy in the concurrency model.
type child struct {
	id  string
	cmd *exec.Cmd

	mu     sync.Mutex
	stdin  io.WriteCloser
	reader *bufio.Reader

	nextID atomic.Int64
}

func startChild(cfg ServerConfig) (*child, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = cfg.Env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("toolserver: stdin pipe for %s: %w", cfg.ID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("toolserver: stdout pipe for %s: %w", cfg.ID, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("toolserver: start %s: %w", cfg.ID, err)
	}
	return &child{
		id:     cfg.ID,
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReader(stdout),
	}, nil
}

// call sends one JSON-RPC request and waits for its matching response.
// Connection loss surfaces as a transient error; the multiplexer's caller
// is responsible for retries.
func (c *child) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("toolserver: marshal params: %w", err)
		}
		raw = b
	}
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("toolserver: marshal request: %w", err)
	}

	done := make(chan struct{})
	var resp rpcResponse
	var readErr error
	go func() {
		defer close(done)
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			readErr = fmt.Errorf("toolserver: read from %s: %w", c.id, err)
			return
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			readErr = fmt.Errorf("toolserver: decode response from %s: %w", c.id, err)
		}
	}()

	if _, err := c.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("toolserver: write to %s: %w", c.id, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	if readErr != nil {
		return nil, readErr
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("toolserver: %s returned error %d: %s", c.id, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (c *child) listTools(ctx context.Context) ([]ToolSpec, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("toolserver: decode tools/list from %s: %w", c.id, err)
	}
	return result.Tools, nil
}

// callTool invokes tools/call and decodes the result. A result with
// IsError set is a tool-level failure rather than a transport failure, but
// it is still returned alongside a non-nil error so the multiplexer's
// retry loop treats it the same as one: the caller gets another chance at
// a transient tool-side error, and if retries are exhausted the failure
// still surfaces as an error instead of a silently "successful" result.
func (c *child) callTool(ctx context.Context, name string, args []any) (*ToolResult, error) {
	raw, err := c.call(ctx, "tools/call", callParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("toolserver: decode tools/call result from %s: %w", c.id, err)
	}
	if result.IsError {
		return &result, fmt.Errorf("toolserver: %s: %w", name, &ToolCallError{Text: resultText(&result)})
	}
	return &result, nil
}

func (c *child) close() error {
	_ = c.stdin.Close()
	return c.cmd.Wait()
}
