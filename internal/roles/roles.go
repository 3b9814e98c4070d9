// Package roles manages the debate persona library: role prompts, stance
// injection for adversarial roles, and keyword-tag based role recommendation.
package roles

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var defaultRolesYAML []byte

// Role is one debate persona.
type Role struct {
	Name    string   `yaml:"name"`
	Prompt  string   `yaml:"prompt"`
	Stance  string   `yaml:"stance,omitempty"` // "adversarial" roles get pro/con position injection
	Aliases []string `yaml:"aliases,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
}

// Library holds the loaded role set.
type Library struct {
	roles       map[string]Role
	aliases     map[string]string
	order       []string            // load order, for stable listings
	tagKeywords map[string][]string // tag -> trigger keywords
}

type rolesFile struct {
	Roles []Role              `yaml:"roles"`
	Tags  map[string][]string `yaml:"tags,omitempty"` // tag -> trigger keywords
}

// DefaultLibrary loads the built-in role set.
func DefaultLibrary() *Library {
	lib, err := Parse(defaultRolesYAML)
	if err != nil {
		// the embedded file is validated by tests; a parse failure here is a
		// build defect, not a runtime condition
		panic(fmt.Sprintf("embedded roles.yaml invalid: %v", err))
	}
	return lib
}

// LoadFile loads a role library from a YAML file.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse loads a role library from YAML bytes.
func Parse(data []byte) (*Library, error) {
	var f rolesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roles: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("roles file defines no roles")
	}

	lib := &Library{
		roles:   make(map[string]Role, len(f.Roles)),
		aliases: make(map[string]string),
	}
	for _, r := range f.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("role with empty name")
		}
		if _, dup := lib.roles[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", r.Name)
		}
		lib.roles[r.Name] = r
		lib.order = append(lib.order, r.Name)
		for _, a := range r.Aliases {
			lib.aliases[strings.ToLower(a)] = r.Name
		}
	}
	lib.tagKeywords = f.Tags
	return lib, nil
}

// Resolve maps a user-supplied role name (possibly an alias or common
// misspelling) to its canonical role. Returns false when unknown.
func (l *Library) Resolve(name string) (Role, bool) {
	if r, ok := l.roles[name]; ok {
		return r, true
	}
	if canonical, ok := l.aliases[strings.ToLower(name)]; ok {
		return l.roles[canonical], true
	}
	return Role{}, false
}

// Names lists all role names in definition order.
func (l *Library) Names() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// PromptFor builds the system prompt for a participant playing the role.
// Adversarial roles get a stance addendum: the first speaker argues in favor
// of the proposition, later speakers argue against it.
func (l *Library) PromptFor(name string, first bool) (string, error) {
	role, ok := l.Resolve(name)
	if !ok {
		return "", fmt.Errorf("unknown role %q", name)
	}
	if role.Stance != "adversarial" {
		return role.Prompt, nil
	}
	if first {
		return role.Prompt + "\n\nYour position: you argue FOR the proposition. Build the affirmative case and defend its merits.", nil
	}
	return role.Prompt + "\n\nYour position: you argue AGAINST the proposition. Probe for logical gaps and counterexamples.", nil
}

// DetectTags scores each tag by keyword hits in the question and returns up
// to three tags in descending weight, ties broken alphabetically.
func (l *Library) DetectTags(question string) []string {
	q := strings.ToLower(question)
	weights := make(map[string]int)
	for tag, keywords := range l.tagKeywords {
		w := 0
		for _, kw := range keywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				w += 2
			}
		}
		if w > 0 {
			weights[tag] = w
		}
	}

	tags := make([]string, 0, len(weights))
	for tag := range weights {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if weights[tags[i]] != weights[tags[j]] {
			return weights[tags[i]] > weights[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > 3 {
		tags = tags[:3]
	}
	return tags
}

// RolesForTags returns the roles recommended for the given tags, sorted by
// name for determinism.
func (l *Library) RolesForTags(tags []string) []string {
	set := make(map[string]bool)
	for _, tag := range tags {
		for _, name := range l.order {
			for _, t := range l.roles[name].Tags {
				if t == tag {
					set[name] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
