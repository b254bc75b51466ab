package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
	"github.com/ovo-bot/ovo-agent/internal/biz/usecase"
)

// Templates contains persona and canned texts loaded from YAML
type Templates struct {
	Persona           string                   `yaml:"persona"`
	FallbackText      string                   `yaml:"fallback_text"`
	StyleInstructions map[string]string        `yaml:"style_instructions"`
	Closings          map[string]ClosingConfig `yaml:"closings"`
	Proactive         map[string][]string      `yaml:"proactive"`
}

// ClosingConfig holds wrap-up lines for one style
type ClosingConfig struct {
	Group   []string `yaml:"group"`
	Private []string `yaml:"private"`
}

// LoadTemplates loads templates from a YAML file. An empty path searches
// the usual locations and falls back to defaults.
func LoadTemplates(path string) (*Templates, string, error) {
	paths := []string{path}
	if path == "" {
		paths = []string{"configs/templates.yaml", "/etc/ovo-agent/templates.yaml"}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "templates.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = raw, p
			break
		}
		if path != "" {
			return nil, "", fmt.Errorf("read templates: %w", err)
		}
	}
	if data == nil {
		return DefaultTemplates(), "", nil
	}

	t, err := ParseTemplates(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	return t, loadedPath, nil
}

// ParseTemplates parses YAML and fills unset fields from the defaults
func ParseTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	t.fillDefaults()
	return &t, nil
}

// fillDefaults fills in default values for empty fields
func (t *Templates) fillDefaults() {
	defaults := DefaultTemplates()

	if t.Persona == "" {
		t.Persona = defaults.Persona
	}
	if t.FallbackText == "" {
		t.FallbackText = defaults.FallbackText
	}

	if t.StyleInstructions == nil {
		t.StyleInstructions = make(map[string]string)
	}
	for k, v := range defaults.StyleInstructions {
		if t.StyleInstructions[k] == "" {
			t.StyleInstructions[k] = v
		}
	}

	if t.Closings == nil {
		t.Closings = make(map[string]ClosingConfig)
	}
	for k, v := range defaults.Closings {
		c := t.Closings[k]
		if len(c.Group) == 0 {
			c.Group = v.Group
		}
		if len(c.Private) == 0 {
			c.Private = v.Private
		}
		t.Closings[k] = c
	}

	if t.Proactive == nil {
		t.Proactive = make(map[string][]string)
	}
	for k, v := range defaults.Proactive {
		if len(t.Proactive[k]) == 0 {
			t.Proactive[k] = v
		}
	}
}

// DefaultTemplates returns the built-in templates
func DefaultTemplates() *Templates {
	prompt := usecase.DefaultPromptConfig()
	planner := usecase.DefaultPlannerConfig()
	proactive := usecase.DefaultProactiveConfig()

	t := &Templates{
		Persona:           prompt.Persona,
		FallbackText:      prompt.FallbackText,
		StyleInstructions: make(map[string]string),
		Closings:          make(map[string]ClosingConfig),
		Proactive:         make(map[string][]string),
	}
	for style, text := range prompt.StyleInstructions {
		t.StyleInstructions[string(style)] = text
	}
	for style, c := range planner.Closings {
		t.Closings[string(style)] = ClosingConfig{Group: c.Group, Private: c.Private}
	}
	for reason, texts := range proactive.Templates {
		t.Proactive[string(reason)] = texts
	}
	return t
}

func (t *Templates) promptConfig() usecase.PromptConfig {
	cfg := usecase.PromptConfig{
		Persona:           t.Persona,
		FallbackText:      t.FallbackText,
		StyleInstructions: make(map[domain.StyleVariant]string, len(t.StyleInstructions)),
	}
	for k, v := range t.StyleInstructions {
		cfg.StyleInstructions[domain.StyleVariant(k)] = v
	}
	return cfg
}

func (t *Templates) closings() map[domain.StyleVariant]usecase.ClosingTexts {
	out := make(map[domain.StyleVariant]usecase.ClosingTexts, len(t.Closings))
	for k, v := range t.Closings {
		out[domain.StyleVariant(k)] = usecase.ClosingTexts{Group: v.Group, Private: v.Private}
	}
	return out
}

func (t *Templates) proactive() map[domain.ProactiveReason][]string {
	out := make(map[domain.ProactiveReason][]string, len(t.Proactive))
	for k, v := range t.Proactive {
		out[domain.ProactiveReason(k)] = v
	}
	return out
}
