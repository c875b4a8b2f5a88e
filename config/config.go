// Package config loads the orchestrator's two configuration inputs: the
// tool-server roster (a YAML document listing child MCP-style processes to
// spawn) and the environment (.env plus process environment) carrying LLM
// and embedding-service credentials. Grounded in original_source/main.py's
// load_dotenv()+yaml.safe_load("config/mcp_server_config.yaml") startup
// sequence.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"qa-orchestrator/toolserver"
)

// Env holds the credentials and endpoints read from the process
// environment (after .env has been merged in by LoadEnv).
type Env struct {
	// GeminiAPIKey backs the default external LLM client (model/anthropic
	// or model/openai, selected at wiring time).
	GeminiAPIKey string
	// TavilyAPIKey is passed through to any configured web-search child
	// tool server via its own environment, not consumed directly here.
	TavilyAPIKey string
	// OllamaHost addresses the embedding service; empty when unset, in
	// which case ollama.New falls back to http://localhost:11434.
	OllamaHost string
}

// LoadEnv merges a .env file at path (if present — a missing file is not an
// error) into the process environment, then reads the variables the
// orchestrator cares about.
func LoadEnv(path string) (Env, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return Env{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return Env{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),
		OllamaHost:   os.Getenv("OLLAMA_HOST"),
	}, nil
}

// mcpServerDoc mirrors the YAML shape main.py reads via
// config_data.get("mcp_servers", []): a top-level mcp_servers list, each
// entry naming a child process and its arguments/environment.
type mcpServerDoc struct {
	MCPServers []mcpServerEntry `yaml:"mcp_servers"`
}

type mcpServerEntry struct {
	ID      string   `yaml:"id"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// LoadToolServers parses a YAML document at path into the toolserver.Start
// configuration list.
func LoadToolServers(path string) ([]toolserver.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc mcpServerDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	configs := make([]toolserver.ServerConfig, 0, len(doc.MCPServers))
	for _, e := range doc.MCPServers {
		if e.ID == "" || e.Command == "" {
			return nil, fmt.Errorf("config: %s: mcp_servers entry requires id and command", path)
		}
		configs = append(configs, toolserver.ServerConfig{
			ID:      e.ID,
			Command: e.Command,
			Args:    e.Args,
			Env:     e.Env,
		})
	}
	return configs, nil
}
