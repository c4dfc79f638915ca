package generator

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfiles []byte

const DefaultProfile = "flink_sql"

// Profile describes one kind of artifact: how to prompt for it and what it
// must contain to be accepted.
type Profile struct {
	Name            string   `yaml:"-"`
	Language        string   `yaml:"language"`
	System          string   `yaml:"system"`
	User            string   `yaml:"user"`
	RequiredMarkers []string `yaml:"required_markers"`
	RequireRuleName bool     `yaml:"require_rule_name"`
	// Format names the post-processing applied before checks, see FormatBraces.
	Format string `yaml:"format"`

	userTmpl *template.Template
}

type profileFile struct {
	Profiles map[string]*Profile `yaml:"profiles"`
}

// LoadProfiles parses the profiles at path, or the embedded defaults when
// path is empty.
func LoadProfiles(path string) (map[string]*Profile, error) {
	raw := defaultProfiles
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read generator profiles: %w", err)
		}
		raw = b
	}
	return ParseProfiles(raw)
}

func ParseProfiles(raw []byte) (map[string]*Profile, error) {
	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse generator profiles: %w", err)
	}
	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("parse generator profiles: no profiles defined")
	}
	for name, p := range pf.Profiles {
		if p == nil {
			return nil, fmt.Errorf("profile %q is empty", name)
		}
		p.Name = name
		if strings.TrimSpace(p.System) == "" {
			return nil, fmt.Errorf("profile %q: system prompt is required", name)
		}
		switch p.Format {
		case FormatNone, FormatBraces:
		default:
			return nil, fmt.Errorf("profile %q: unknown format %q", name, p.Format)
		}
		if strings.TrimSpace(p.User) == "" {
			p.User = "{{.Description}}"
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(p.User)
		if err != nil {
			return nil, fmt.Errorf("profile %q: user template: %w", name, err)
		}
		p.userTmpl = tmpl
	}
	return pf.Profiles, nil
}

// Select returns the named profile or an error listing the known ones.
func Select(profiles map[string]*Profile, name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	if p, ok := profiles[name]; ok {
		return p, nil
	}
	known := make([]string, 0, len(profiles))
	for k := range profiles {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown generator profile %q (known: %s)", name, strings.Join(known, ", "))
}

func (p *Profile) renderUser(req Request) (string, error) {
	var buf bytes.Buffer
	if err := p.userTmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// check validates a cleaned artifact against the profile.
func (p *Profile) check(artifact string, req Request) error {
	if strings.TrimSpace(artifact) == "" {
		return ErrEmptyArtifact
	}
	lower := strings.ToLower(artifact)
	for _, m := range p.RequiredMarkers {
		if !strings.Contains(lower, strings.ToLower(m)) {
			return fmt.Errorf("%w: %q", ErrMissingMarker, m)
		}
	}
	if p.RequireRuleName && req.RuleName != "" && !strings.Contains(artifact, req.RuleName) {
		return fmt.Errorf("%w: rule name %q", ErrMissingMarker, req.RuleName)
	}
	return nil
}
