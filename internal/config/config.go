// Package config loads agent settings from an optional YAML file, then
// applies environment overrides. Command-line flags are applied last by the
// caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sota-6741/gemini-auto-refactor/internal/watch"
)

// DefaultFile is loaded from the working directory when present.
const DefaultFile = "refactor-agent.yaml"

// ToolConfig describes the external refactor tool.
type ToolConfig struct {
	Command    []string      `yaml:"command"`
	PromptFile string        `yaml:"prompt_file"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WebConfig controls page delivery.
type WebConfig struct {
	Template  string `yaml:"template"`
	StaticDir string `yaml:"static_dir"`
}

// AuditConfig controls result files and the signed ledger. Empty paths
// disable the corresponding store.
type AuditConfig struct {
	ResultsDir string `yaml:"results_dir"`
	LedgerPath string `yaml:"ledger_path"`
	KeysDir    string `yaml:"keys_dir"`
}

// NATSConfig enables mirroring events to a NATS subject.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Config holds the runtime configuration.
type Config struct {
	Root              string        `yaml:"root"`
	Addr              string        `yaml:"addr"`
	LogLevel          string        `yaml:"log_level"`
	Extensions        []string      `yaml:"extensions"`
	Exclude           []string      `yaml:"exclude"`
	IgnoreDirs        []string      `yaml:"ignore_dirs"`
	Debounce          time.Duration `yaml:"debounce"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	ObserverQueue     int           `yaml:"observer_queue"`
	Tool              ToolConfig    `yaml:"tool"`
	Web               WebConfig     `yaml:"web"`
	Audit             AuditConfig   `yaml:"audit"`
	HistoryDB         string        `yaml:"history_db"`
	NATS              NATSConfig    `yaml:"nats"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Root:          ".",
		Addr:          ":8000",
		LogLevel:      "info",
		Extensions:    []string{".py"},
		Exclude:       []string{"agent_server.py"},
		IgnoreDirs:    watch.DefaultIgnoreDirs(),
		Debounce:      300 * time.Millisecond,
		ObserverQueue: 64,
		Tool: ToolConfig{
			Command:    []string{"gemini"},
			PromptFile: "refactor_prompt.txt",
			Timeout:    2 * time.Minute,
		},
		Web: WebConfig{
			Template:  "templates/index.html",
			StaticDir: "static",
		},
		Audit: AuditConfig{
			ResultsDir: ".refactor/results",
			LedgerPath: ".refactor/ledger.jsonl",
			KeysDir:    ".refactor/keys",
		},
		HistoryDB: ".refactor/history.db",
	}
}

// Load reads path over the defaults. A missing DefaultFile is not an error;
// a missing explicitly named file is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if tool := os.Getenv("REFACTOR_TOOL"); tool != "" {
		c.Tool.Command = strings.Fields(tool)
	}
	if prompt := os.Getenv("REFACTOR_PROMPT"); prompt != "" {
		c.Tool.PromptFile = prompt
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}
}

// Validate rejects configurations the agent cannot run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Root) == "" {
		problems = append(problems, "root is empty")
	}
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr is empty")
	}
	if len(c.Tool.Command) == 0 || strings.TrimSpace(c.Tool.Command[0]) == "" {
		problems = append(problems, "tool.command is empty")
	}
	if c.Tool.PromptFile == "" {
		problems = append(problems, "tool.prompt_file is empty")
	}
	if c.Tool.Timeout <= 0 {
		problems = append(problems, "tool.timeout must be positive")
	}
	if c.Debounce < 0 {
		problems = append(problems, "debounce must not be negative")
	}
	if c.MaxConcurrentJobs < 0 {
		problems = append(problems, "max_concurrent_jobs must not be negative")
	}
	if c.Audit.LedgerPath != "" && c.Audit.KeysDir == "" {
		problems = append(problems, "audit.keys_dir is required when audit.ledger_path is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
