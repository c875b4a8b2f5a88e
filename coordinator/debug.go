package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"qa-orchestrator/blackboard"
)

// writeDebugSnapshot persists bb's full state to
// <root>/debug_<session_id>.json, mirroring memory_agent.py's
// save_debug_snapshot: a best-effort debugging artifact, not load-bearing
// for the session's own correctness.
func writeDebugSnapshot(root string, bb *blackboard.Blackboard) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("coordinator: mkdir %s: %w", root, err)
	}
	data, err := json.MarshalIndent(bb.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("coordinator: marshal snapshot: %w", err)
	}
	path := filepath.Join(root, fmt.Sprintf("debug_%s.json", bb.SessionID()))
	return os.WriteFile(path, data, 0o644)
}
