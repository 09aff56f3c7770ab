// Package agents defines the reviewer agents the engine can invoke and
// how to invoke them: external CLIs driven over argv, or vendor APIs
// when keys are configured. Invocation failures map onto a small typed
// error set so callers can decide what is retryable.
package agents

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind selects the invocation mechanism for an agent.
type Kind string

const (
	KindCLI       Kind = "cli"
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
)

// MinReviewers is the smallest agent count (lead included) a review can
// run with.
const MinReviewers = 2

// Agent describes one reviewer agent.
type Agent struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Kind        Kind     `yaml:"kind"`
	// Command is the argv prefix for cli agents; the prompt is appended
	// as the final argument.
	Command   []string `yaml:"command"`
	ProbeArgs []string `yaml:"probe_args"`
	// Model is the vendor model id for api agents.
	Model string `yaml:"model"`
}

// builtins mirrors the CLI tools this engine grew up around. The api
// entries only probe as available when a key is configured.
func builtins() []Agent {
	return []Agent{
		{Name: "claude", DisplayName: "Claude Code", Kind: KindCLI, Command: []string{"claude", "-p"}, ProbeArgs: []string{"--version"}},
		{Name: "codex", DisplayName: "Codex CLI", Kind: KindCLI, Command: []string{"codex", "exec", "--skip-git-repo-check"}, ProbeArgs: []string{"--version"}},
		{Name: "gemini", DisplayName: "Gemini CLI", Kind: KindCLI, Command: []string{"gemini"}, ProbeArgs: []string{"--version"}},
		{Name: "grok", DisplayName: "Grok CLI", Kind: KindCLI, Command: []string{"grok", "-p"}, ProbeArgs: []string{"--version"}},
		{Name: "anthropic-api", DisplayName: "Anthropic API", Kind: KindAnthropic, Model: "claude-sonnet-4-5"},
		{Name: "openai-api", DisplayName: "OpenAI API", Kind: KindOpenAI, Model: "gpt-4.1"},
	}
}

// Registry holds the known agents in a stable order.
type Registry struct {
	agents map[string]Agent
	order  []string
}

// NewRegistry returns a registry seeded with the built-in agents.
func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]Agent)}
	for _, a := range builtins() {
		r.put(a)
	}
	return r
}

func (r *Registry) put(a Agent) {
	if _, exists := r.agents[a.Name]; !exists {
		r.order = append(r.order, a.Name)
	}
	r.agents[a.Name] = a
}

// agentsFile is the on-disk shape of a custom agent definitions file.
type agentsFile struct {
	Agents []Agent `yaml:"agents"`
}

// LoadFile merges agent definitions from a YAML file. Entries with a
// known name override the builtin; new names are appended. A missing
// file is not an error.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read agents file: %w", err)
	}

	var parsed agentsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse agents file %s: %w", path, err)
	}

	for _, a := range parsed.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents file %s: entry missing name", path)
		}
		if a.Kind == "" {
			a.Kind = KindCLI
		}
		r.put(a)
	}
	return nil
}

// SetModel overrides the model of a known agent. Unknown names and
// empty models are ignored so config overrides do not have to track
// the registry.
func (r *Registry) SetModel(name, model string) {
	if a, ok := r.agents[name]; ok && model != "" {
		a.Model = model
		r.agents[name] = a
	}
}

// Get looks up an agent by name.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return Agent{}, &NotFoundError{Agent: name}
	}
	return a, nil
}

// List returns all agents in registration order.
func (r *Registry) List() []Agent {
	out := make([]Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// Names returns all agent names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
