// Package models loads the model catalog: markdown cards describing the
// generation models a deployment exposes to its users. Cards live in the
// workspace so operators can add models without a rebuild; a builtin set
// covers the published schemas.
package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParamSpec maps one API parameter onto a placeholder slot of the dynamic
// create node.
type ParamSpec struct {
	Placeholder string `yaml:"placeholder"`
	Type        string `yaml:"type"`
}

// Metadata is the YAML frontmatter of a model card.
type Metadata struct {
	Description string `yaml:"description"`
	Wavebot     struct {
		Model    string                 `yaml:"model"`
		Kind     string                 `yaml:"kind"`
		Dynamic  bool                   `yaml:"dynamic"`
		Default  bool                   `yaml:"default"`
		Params   map[string]ParamSpec   `yaml:"params"`
		Defaults map[string]interface{} `yaml:"defaults"`
	} `yaml:"wavebot"`
}

// Card describes one model a chat can select: where it lives in the API,
// how user-facing parameters map onto its request, and the prompt
// guidance shown for it.
type Card struct {
	Name        string
	Path        string
	Source      string // "builtin" unless loaded from the workspace
	Description string
	Model       string // published schema name, or model UUID when Dynamic
	Kind        string // "video", "image", "audio"
	Dynamic     bool
	Default     bool
	Available   bool
	Missing     []string
	Params      map[string]ParamSpec
	Defaults    map[string]interface{}
	Guide       string // card body: prompting guidance, also fed to the enhancer
}

// ParamMap renders the card's parameter mapping in the form the dynamic
// create node consumes.
func (c *Card) ParamMap() map[string]interface{} {
	m := make(map[string]interface{}, len(c.Params))
	for name, spec := range c.Params {
		m[name] = map[string]interface{}{
			"placeholder": spec.Placeholder,
			"type":        spec.Type,
		}
	}
	return m
}

// Loader reads the card catalog for one workspace.
type Loader struct {
	modelsDir string
}

// NewLoader returns a catalog over <workspace>/models plus the builtins.
func NewLoader(workspace string) *Loader {
	return &Loader{modelsDir: filepath.Join(workspace, "models")}
}

// ListCards returns every card, workspace cards first. A workspace card
// shadows the builtin card of the same name.
func (l *Loader) ListCards() ([]Card, error) {
	cards, err := l.workspaceCards()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cards))
	for _, c := range cards {
		seen[c.Name] = true
	}
	for _, c := range builtinCards() {
		if !seen[c.Name] {
			cards = append(cards, c)
		}
	}
	return cards, nil
}

// workspaceCards loads models/<name>/MODEL.md for every directory under
// the workspace. A workspace without a models directory has no cards.
func (l *Loader) workspaceCards() ([]Card, error) {
	entries, err := os.ReadDir(l.modelsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cards []Card
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		card, err := l.loadCard(entry.Name())
		if err != nil {
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (l *Loader) loadCard(name string) (Card, error) {
	path := filepath.Join(l.modelsDir, name, "MODEL.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return Card{}, err
	}

	meta, guide, yamlErr := splitCard(raw)
	problems := cardProblems(meta, yamlErr)

	card := Card{
		Name:        name,
		Path:        path,
		Source:      "workspace",
		Description: meta.Description,
		Model:       meta.Wavebot.Model,
		Kind:        meta.Wavebot.Kind,
		Dynamic:     meta.Wavebot.Dynamic,
		Default:     meta.Wavebot.Default,
		Available:   len(problems) == 0,
		Missing:     problems,
		Params:      meta.Wavebot.Params,
		Defaults:    meta.Wavebot.Defaults,
		Guide:       guide,
	}
	if card.Description == "" {
		card.Description = name
	}
	return card, nil
}

// Lookup finds a card by its catalog name or by the model it targets.
func (l *Loader) Lookup(name string) (Card, bool) {
	cards, err := l.ListCards()
	if err != nil {
		return Card{}, false
	}
	for _, c := range cards {
		if c.Name == name || c.Model == name {
			return c, true
		}
	}
	return Card{}, false
}

// DefaultCard returns the card chats fall back to when no model was picked.
func (l *Loader) DefaultCard() (Card, bool) {
	cards, err := l.ListCards()
	if err != nil {
		return Card{}, false
	}
	for _, c := range cards {
		if c.Default && c.Available {
			return c, true
		}
	}
	for _, c := range cards {
		if c.Available {
			return c, true
		}
	}
	return Card{}, false
}

// BuildCatalogSummary builds the markdown catalog listing.
func (l *Loader) BuildCatalogSummary() string {
	cards, err := l.ListCards()
	if err != nil {
		return ""
	}

	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })

	var sb strings.Builder
	for _, c := range cards {
		status := c.Kind
		if !c.Available {
			status = fmt.Sprintf("unavailable (missing: %s)", strings.Join(c.Missing, ", "))
		}

		sb.WriteString(fmt.Sprintf("- **%s** (%s)\n", c.Name, status))
		sb.WriteString(fmt.Sprintf("  %s\n", c.Description))
		sb.WriteString(fmt.Sprintf("  Model: %s\n", c.Model))
		sb.WriteString("\n")
	}

	return sb.String()
}

// splitCard separates a card file into its frontmatter and markdown body.
// Files without a closed "---" block are all body.
func splitCard(raw []byte) (Metadata, string, error) {
	var meta Metadata
	text := string(raw)

	rest, hasFront := strings.CutPrefix(text, "---")
	if !hasFront {
		return meta, strings.TrimSpace(text), nil
	}
	front, body, closed := strings.Cut(rest, "\n---")
	if !closed {
		return meta, strings.TrimSpace(text), nil
	}
	err := yaml.Unmarshal([]byte(front), &meta)
	return meta, strings.TrimSpace(body), err
}

// cardProblems lists what keeps a card from being offered: frontmatter
// that does not parse, no model reference, or a parameter mapping without
// a placeholder slot.
func cardProblems(meta Metadata, yamlErr error) []string {
	var problems []string
	if yamlErr != nil {
		problems = append(problems, "frontmatter: invalid yaml")
	}
	if meta.Wavebot.Model == "" {
		problems = append(problems, "field: wavebot.model")
	}
	for param, spec := range meta.Wavebot.Params {
		if spec.Placeholder == "" {
			problems = append(problems, "placeholder: "+param)
		}
	}
	sort.Strings(problems)
	return problems
}
