package usecase

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrUnknownUseCase is returned for an id missing from the catalog
	ErrUnknownUseCase = errors.New("unknown use case")

	// ErrDocumentRequired is returned when a use case needs an upload and got none
	ErrDocumentRequired = errors.New("document required")
)

// Kind selects the handler for a use case
type Kind string

const (
	KindGuardrails   Kind = "guardrails"
	KindDocumentQA   Kind = "document_qa"
	KindFeedbackLoop Kind = "feedback_loop"
	KindJudge        Kind = "judge"
	KindEvaluation   Kind = "evaluation"
	KindIncidents    Kind = "incidents"
	KindTraining     Kind = "training"
	KindRubric       Kind = "rubric"
	KindFoundation   Kind = "foundation"
	KindNarrative    Kind = "narrative"
	KindLink         Kind = "link"
)

var knownKinds = map[Kind]bool{
	KindGuardrails: true, KindDocumentQA: true, KindFeedbackLoop: true, KindJudge: true,
	KindEvaluation: true, KindIncidents: true, KindTraining: true, KindRubric: true,
	KindFoundation: true, KindNarrative: true, KindLink: true,
}

// Persona describes the assistant a use case speaks as
type Persona struct {
	Role      string `yaml:"role" json:"role,omitempty"`
	Goal      string `yaml:"goal" json:"goal,omitempty"`
	Backstory string `yaml:"backstory" json:"backstory,omitempty"`
}

// Empty reports whether no persona field is set
func (p Persona) Empty() bool {
	return p.Role == "" && p.Goal == "" && p.Backstory == ""
}

// UseCase is one entry of the dashboard catalog
type UseCase struct {
	ID               string   `yaml:"id" json:"id"`
	Title            string   `yaml:"title" json:"title"`
	Kind             Kind     `yaml:"kind" json:"kind"`
	Description      string   `yaml:"description" json:"description,omitempty"`
	Provider         string   `yaml:"provider" json:"provider,omitempty"`
	Model            string   `yaml:"model" json:"model,omitempty"`
	Temperature      *float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens        int      `yaml:"max_tokens" json:"max_tokens,omitempty"`
	RequiresDocument bool     `yaml:"requires_document" json:"requires_document"`
	Accepts          []string `yaml:"accepts" json:"accepts,omitempty"`
	ExternalURL      string   `yaml:"external_url" json:"external_url,omitempty"`
	Persona          Persona  `yaml:"persona" json:"persona,omitempty"`
}

// TemperatureOr returns the configured temperature or fallback
func (u UseCase) TemperatureOr(fallback float64) float64 {
	if u.Temperature != nil {
		return *u.Temperature
	}
	return fallback
}

// MaxTokensOr returns the configured token limit or fallback
func (u UseCase) MaxTokensOr(fallback int) int {
	if u.MaxTokens > 0 {
		return u.MaxTokens
	}
	return fallback
}

// Accept reports whether a file name has an accepted extension
func (u UseCase) Accept(name string) bool {
	if len(u.Accepts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, accepted := range u.Accepts {
		if strings.EqualFold(accepted, ext) {
			return true
		}
	}
	return false
}

// Validate checks the fields a handler depends on
func (u UseCase) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("use case id is required")
	}
	if !knownKinds[u.Kind] {
		return fmt.Errorf("use case %s: unknown kind %q", u.ID, u.Kind)
	}
	if u.Kind == KindLink && u.ExternalURL == "" {
		return fmt.Errorf("use case %s: link requires external_url", u.ID)
	}
	if u.Temperature != nil && (*u.Temperature < 0 || *u.Temperature > 2) {
		return fmt.Errorf("use case %s: temperature must be between 0 and 2", u.ID)
	}
	return nil
}

// Catalog is the ordered set of use cases
type Catalog struct {
	items []UseCase
	byID  map[string]int
}

// ParseCatalog parses catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		UseCases []UseCase `yaml:"usecases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal use case catalog: %w", err)
	}
	if len(doc.UseCases) == 0 {
		return nil, fmt.Errorf("use case catalog is empty")
	}

	catalog := &Catalog{byID: make(map[string]int, len(doc.UseCases))}
	for _, uc := range doc.UseCases {
		if err := uc.Validate(); err != nil {
			return nil, err
		}
		if _, exists := catalog.byID[uc.ID]; exists {
			return nil, fmt.Errorf("duplicate use case id %s", uc.ID)
		}
		if uc.Title == "" {
			uc.Title = uc.ID
		}
		catalog.byID[uc.ID] = len(catalog.items)
		catalog.items = append(catalog.items, uc)
	}

	return catalog, nil
}

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded use case catalog is invalid: %v", err))
	}
	return catalog
}

// LoadCatalog reads the catalog at path, or the embedded one when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	if !isValidFilePath(path) {
		return nil, fmt.Errorf("invalid catalog path %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path is validated with isValidFilePath() before use
	if err != nil {
		return nil, fmt.Errorf("failed to read use case catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Get returns the use case with id
func (c *Catalog) Get(id string) (UseCase, error) {
	idx, ok := c.byID[id]
	if !ok {
		return UseCase{}, fmt.Errorf("%w: %s", ErrUnknownUseCase, id)
	}
	return c.items[idx], nil
}

// List returns the use cases in catalog order
func (c *Catalog) List() []UseCase {
	out := make([]UseCase, len(c.items))
	copy(out, c.items)
	return out
}

// FormatSystemPrompt renders a persona as a system prompt, replacing {key} placeholders
func FormatSystemPrompt(persona Persona, variables map[string]string) string {
	role, goal, backstory := persona.Role, persona.Goal, persona.Backstory
	for key, value := range variables {
		placeholder := fmt.Sprintf("{%s}", key)
		role = strings.ReplaceAll(role, placeholder, value)
		goal = strings.ReplaceAll(goal, placeholder, value)
		backstory = strings.ReplaceAll(backstory, placeholder, value)
	}

	var sections []string
	if role != "" {
		sections = append(sections, "# Role\n"+strings.TrimSpace(role))
	}
	if goal != "" {
		sections = append(sections, "# Goal\n"+strings.TrimSpace(goal))
	}
	if backstory != "" {
		sections = append(sections, "# Backstory\n"+strings.TrimSpace(backstory))
	}
	return strings.Join(sections, "\n\n")
}

// isValidFilePath rejects traversal, device paths and anything that is not a regular file
func isValidFilePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		return false
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return false
	}
	if strings.HasPrefix(absPath, "/proc") ||
		strings.HasPrefix(absPath, "/sys") ||
		strings.HasPrefix(absPath, "/dev") {
		return false
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return false
	}
	return fileInfo.Mode().IsRegular()
}
