package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"taskdeck/internal/domain"
)

// Config models taskdeck.yml.
type Config struct {
	Project struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"project"`
	Members struct {
		// DefaultRole is applied when `td member add` is called without
		// an explicit role.
		DefaultRole string `yaml:"default_role"`
	} `yaml:"members"`
	Server struct {
		BasePath              string `yaml:"base_path"`
		JWTSecret             string `yaml:"jwt_secret"`
		AllowLegacyUserHeader bool   `yaml:"allow_legacy_user_header"`
	} `yaml:"server"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with td project init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Members.DefaultRole != "" && !domain.Role(c.Members.DefaultRole).Valid() {
		return fmt.Errorf("config.members.default_role must be owner, member or viewer")
	}
	return nil
}

// DefaultRole returns the configured default role for new members.
func (c *Config) DefaultRole() domain.Role {
	if c == nil || c.Members.DefaultRole == "" {
		return domain.RoleMember
	}
	return domain.Role(c.Members.DefaultRole)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdeck.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(projectID)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  title: ""

members:
  default_role: member

server:
  base_path: /v1
  jwt_secret: ""
  allow_legacy_user_header: true
`
