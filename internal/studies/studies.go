// Package studies loads per-study configuration from disk. Each study lives
// in its own directory under the studies root and carries its messaging copy,
// pre-screen questionnaire and eligibility rules.
package studies

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"intake_backend/internal/eligibility"
	"intake_backend/platform/apperr"
)

// Study identifies the study itself.
type Study struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Sponsor string `json:"sponsor,omitempty" yaml:"sponsor,omitempty"`
}

// Messaging holds the study-specific conversational copy.
type Messaging struct {
	Greeting         string `json:"greeting" yaml:"greeting"`
	PinFailure       string `json:"pin_failure" yaml:"pin_failure"`
	Disqualification string `json:"disqualification" yaml:"disqualification"`
}

// Question is a single pre-screen questionnaire item.
type Question struct {
	ID       string `json:"id" yaml:"id"`
	Question string `json:"question" yaml:"question"`
	Type     string `json:"type" yaml:"type"`
	// DisqualifyOn immediately ends the screening when the normalized
	// answer matches. Empty means the question never disqualifies on its
	// own.
	DisqualifyOn string `json:"disqualify_on,omitempty" yaml:"disqualify_on,omitempty"`
}

// PreScreen is the ordered study questionnaire.
type PreScreen struct {
	Questions []Question `json:"questions" yaml:"questions"`
}

// Config is a fully loaded study configuration.
type Config struct {
	Study       Study             `json:"study" yaml:"study"`
	Messaging   Messaging         `json:"messaging" yaml:"messaging"`
	PreScreen   PreScreen         `json:"pre_screen" yaml:"pre_screen"`
	Eligibility eligibility.Rules `json:"eligibility" yaml:"eligibility"`
}

// QuestionByID returns the questionnaire item with the given id.
func (c *Config) QuestionByID(id string) (Question, bool) {
	for _, q := range c.PreScreen.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

var requiredSections = []string{"study", "messaging", "pre_screen", "eligibility"}

// Loader reads study configurations from a directory tree laid out as
// <dir>/<study_id>/config.json (or config.yaml / config.yml).
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads and validates the configuration for a study. A missing study
// directory yields a NotFound error; malformed or incomplete configuration
// yields a Validation error so callers can reject the session up front.
func (l *Loader) Load(studyID string) (*Config, error) {
	const op = "studies.Load"

	path, kind, err := l.resolve(studyID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read study configuration", err).WithOp(op)
	}

	// Decode into a generic map first so missing top-level sections can be
	// distinguished from zero values.
	var sections map[string]interface{}
	var cfg Config
	switch kind {
	case "json":
		if err := json.Unmarshal(raw, &sections); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("study configuration has invalid JSON: %s", path), err).WithOp(op)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("study configuration has invalid JSON: %s", path), err).WithOp(op)
		}
	case "yaml":
		if err := yaml.Unmarshal(raw, &sections); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("study configuration has invalid YAML: %s", path), err).WithOp(op)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("study configuration has invalid YAML: %s", path), err).WithOp(op)
		}
	}

	for _, section := range requiredSections {
		if _, ok := sections[section]; !ok {
			return nil, apperr.New(apperr.KindValidation,
				fmt.Sprintf("study configuration missing required section %q: %s", section, path)).WithOp(op)
		}
	}

	if cfg.Study.ID == "" {
		cfg.Study.ID = studyID
	}

	return &cfg, nil
}

// resolve finds the config file for a study, preferring JSON over YAML.
func (l *Loader) resolve(studyID string) (path, kind string, err error) {
	const op = "studies.resolve"

	candidates := []struct {
		name string
		kind string
	}{
		{"config.json", "json"},
		{"config.yaml", "yaml"},
		{"config.yml", "yaml"},
	}

	for _, c := range candidates {
		p := filepath.Join(l.dir, studyID, c.name)
		if _, statErr := os.Stat(p); statErr == nil {
			return p, c.kind, nil
		} else if !errors.Is(statErr, fs.ErrNotExist) {
			return "", "", apperr.Wrap(apperr.KindInternal, "failed to stat study configuration", statErr).WithOp(op)
		}
	}

	return "", "", apperr.New(apperr.KindNotFound,
		fmt.Sprintf("study configuration not found for study %q", studyID)).WithOp(op)
}
