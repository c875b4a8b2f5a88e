// Command demo wires the orchestrator's components into a runnable REPL,
// mirroring original_source/main.py's startup sequence: load .env, load the
// mcp_servers YAML roster, spawn the tool-server multiplexer, build the
// coordinator, and resume the previous session ID from .last_session_id if
// one is recorded.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"qa-orchestrator/blackboard"
	"qa-orchestrator/config"
	"qa-orchestrator/coordinator"
	"qa-orchestrator/decision"
	"qa-orchestrator/embedding/ollama"
	"qa-orchestrator/ioh/cli"
	"qa-orchestrator/memory"
	"qa-orchestrator/model/anthropic"
	"qa-orchestrator/perception"
	"qa-orchestrator/retriever"
	"qa-orchestrator/telemetry"
	"qa-orchestrator/toolserver"
	"qa-orchestrator/vectorindex"
)

const banner = `
──────────────────────────────────────────────────────
  Multi-Agent QA Orchestrator
──────────────────────────────────────────────────────
`

const lastSessionFile = ".last_session_id"

func main() {
	fmt.Print(banner)
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "\nfatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	env, err := config.LoadEnv(".env")
	if err != nil {
		return err
	}
	if env.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	fmt.Println("loading tool servers...")
	servers, err := config.LoadToolServers("config/mcp_server_config.yaml")
	if err != nil {
		return err
	}
	mux, err := toolserver.Start(ctx, servers)
	if err != nil {
		return fmt.Errorf("starting tool servers: %w", err)
	}
	defer mux.Close()

	llm, err := anthropic.NewFromAPIKey(env.GeminiAPIKey, "claude-sonnet-4-5")
	if err != nil {
		return err
	}

	embedder := ollama.New(env.OllamaHost)

	dataRoot := "memory"
	sessionID := readLastSessionID()
	if sessionID == "" {
		sessionID = "session-1"
	}
	session := memory.NewSessionStore(sessionID, embedder, dataRoot)

	tier2, err := vectorindex.Open[memory.Entry]("memory/memory", 768)
	if err != nil {
		return fmt.Errorf("opening cross-session index: %w", err)
	}
	tier3, err := vectorindex.Open[memory.DocumentChunk]("memory/documents", 768)
	if err != nil {
		return fmt.Errorf("opening document index: %w", err)
	}
	r := retriever.New(session, tier2, tier3, embedder)

	c := coordinator.NewWithLogger(
		perception.New(llm),
		decision.New(llm),
		mux,
		r,
		session,
		cli.New(),
		"memory/debug",
		telemetry.NewSlogLogger(nil),
	)

	fmt.Println("\nready. type 'exit' to quit.")
	repl(ctx, c, sessionID)
	return nil
}

func readLastSessionID() string {
	data, err := os.ReadFile(lastSessionFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveLastSessionID(sessionID string) {
	_ = os.WriteFile(lastSessionFile, []byte(sessionID), 0o644)
}

func repl(ctx context.Context, c *coordinator.Coordinator, sessionID string) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\nyou: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			fmt.Println("goodbye.")
			return
		}
		answer := c.Run(ctx, sessionID, query, blackboard.HITLConfig{})
		fmt.Printf("\nanswer: %s\n", answer)
		saveLastSessionID(sessionID)
	}
}
