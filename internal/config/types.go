package config

// Limits defines operational boundaries for a run.
type Limits struct {
	MaxIterations int `yaml:"max_iterations"`
}

// Models selects the agent model per kind of invocation. Empty means the
// agent's own default. Keys other than the named fields select the model
// for the prompt of that name, as run by "ralph prompt".
type Models struct {
	Backlog     string            `yaml:"backlog,omitempty"`
	Feature     string            `yaml:"feature,omitempty"`
	OnIteration string            `yaml:"on_iteration,omitempty"`
	OnComplete  string            `yaml:"on_complete,omitempty"`
	Prompts     map[string]string `yaml:",inline"`
}

// ForPrompt returns the model configured for the named prompt.
func (m Models) ForPrompt(name string) string {
	return m.Prompts[name]
}

// Hooks enables the optional agent hooks that run between iterations and
// after a unit of work completes.
type Hooks struct {
	OnIteration bool `yaml:"on_iteration"`
	OnComplete  bool `yaml:"on_complete"`
}

// Service declares an auxiliary dev process started before the agent runs.
type Service struct {
	Name           string   `yaml:"name"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args,omitempty"`
	ReadyPattern   string   `yaml:"ready_pattern,omitempty"`
	ReadyTimeoutMS int      `yaml:"ready_timeout_ms,omitempty"`
	OpenURL        string   `yaml:"open_url,omitempty"`
}

// MCPServer defines an MCP server made available to the agent.
type MCPServer struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// MCP groups the MCP server declarations.
type MCP struct {
	Servers map[string]MCPServer `yaml:"servers,omitempty"`
}

// Sandbox configures the remote sandbox backend.
type Sandbox struct {
	RepoURL    string   `yaml:"repo_url,omitempty"`
	Branch     string   `yaml:"branch,omitempty"`
	Checkpoint string   `yaml:"checkpoint,omitempty"`
	Setup      []string `yaml:"setup,omitempty"`
}

// Notify configures the notification side channel.
type Notify struct {
	NtfyURL string `yaml:"ntfy_url,omitempty"`
	Desktop bool   `yaml:"desktop,omitempty"`
}

// Agent configures the agent binary.
type Agent struct {
	Binary string `yaml:"binary,omitempty"`
}

// Config represents the .ralph/config.yaml file.
type Config struct {
	Limits   Limits    `yaml:"limits"`
	Models   Models    `yaml:"models,omitempty"`
	Hooks    Hooks     `yaml:"hooks,omitempty"`
	Services []Service `yaml:"services,omitempty"`
	MCP      MCP       `yaml:"mcp,omitempty"`
	Sandbox  Sandbox   `yaml:"sandbox,omitempty"`
	Notify   Notify    `yaml:"notify,omitempty"`
	Agent    Agent     `yaml:"agent,omitempty"`
}

// Environment variable names read by ralph.
const (
	EnvSpriteToken     = "SPRITE_TOKEN"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGitHubToken     = "GH_TOKEN"
	EnvNtfyURL         = "NTFY_URL"
)
