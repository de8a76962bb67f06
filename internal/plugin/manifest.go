package plugin

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Command documents one chat command a plugin may register at init.
// The authoritative list comes from the plugin's init reply.
type Command struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Example     string   `yaml:"example,omitempty" json:"example,omitempty"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// Commands is a list of documented commands.
//
// Accepted formats:
//   - string array: commands: [greet, roll]
//   - object array: commands: [{name: greet, description: "say hi"}]
type Commands []Command

func (c *Commands) UnmarshalYAML(n *yaml.Node) error {
	if n == nil {
		*c = nil
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("commands must be a sequence")
	}

	out := make([]Command, 0, len(n.Content))
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, Command{Name: strings.TrimSpace(item.Value)})
		case yaml.MappingNode:
			var tmp Command
			if err := item.Decode(&tmp); err != nil {
				return fmt.Errorf("invalid command object: %w", err)
			}
			tmp.Name = strings.TrimSpace(tmp.Name)
			out = append(out, tmp)
		default:
			return fmt.Errorf("invalid command entry (must be string or object)")
		}
	}

	*c = out
	return nil
}

// ConfigField documents one config key and its default.
type ConfigField struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Manifest is the documentation a plugin ships in manifest.yaml.
type Manifest struct {
	Name        string                 `yaml:"name" json:"name"`
	Version     string                 `yaml:"version,omitempty" json:"version,omitempty"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string                 `yaml:"author,omitempty" json:"author,omitempty"`
	Commands    Commands               `yaml:"commands,omitempty" json:"commands,omitempty"`
	Config      map[string]ConfigField `yaml:"config,omitempty" json:"config,omitempty"`
}

// ParseManifest decodes manifest YAML. Only syntax is checked.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	m.Name = strings.TrimSpace(m.Name)
	return &m, nil
}

// Defaults returns the default value of every config field that declares one.
func (m *Manifest) Defaults() map[string]any {
	out := make(map[string]any, len(m.Config))
	for key, field := range m.Config {
		if field.Default != nil {
			out[key] = field.Default
		}
	}
	return out
}

// ConfigKeys returns the documented config keys, sorted.
func (m *Manifest) ConfigKeys() []string {
	keys := make([]string, 0, len(m.Config))
	for k := range m.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CommandNames returns documented command names in manifest order.
func (m *Manifest) CommandNames() []string {
	out := make([]string, 0, len(m.Commands))
	for _, c := range m.Commands {
		out = append(out, c.Name)
	}
	return out
}
