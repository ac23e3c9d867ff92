package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the store: "badger" (default) or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Dataset and Kind select the scope. They default to "test" and
	// "neurons".
	Dataset string `yaml:"dataset,omitempty"`
	Kind    string `yaml:"kind,omitempty"`

	// IDField overrides the engine's default id field.
	IDField string `yaml:"id_field,omitempty"`

	// MaxQueryValues lowers the membership cap, which makes id chunking
	// observable with small scenarios.
	MaxQueryValues int `yaml:"max_query_values,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	Payload     map[string]any `yaml:"payload,omitempty"`
	Where       map[string]any `yaml:"where,omitempty"`
	ID          any            `yaml:"id,omitempty"`
	IDs         []any          `yaml:"ids,omitempty"`
	Version     string         `yaml:"version,omitempty"`
	Conditional []string       `yaml:"conditional,omitempty"`
	Replace     bool           `yaml:"replace,omitempty"`
	User        string         `yaml:"user,omitempty"`

	// Expect is checked against the step's outcome. Nil means the step
	// must succeed and nothing else is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step's expected outcome. Only set fields are checked.
type Expect struct {
	// Error is the expected error code. A step with Error set must fail.
	Error string `yaml:"error,omitempty"`

	// Outcome is the write outcome: create, head or archive.
	Outcome string `yaml:"outcome,omitempty"`

	// Version is the version tag of the written or selected record.
	Version string `yaml:"version,omitempty"`

	// Found is false when a versioned get predates every record.
	Found *bool `yaml:"found,omitempty"`

	// Record is a subset match against the selected record.
	Record map[string]any `yaml:"record,omitempty"`

	// IDs are the matched ids of a query or fetch, in order.
	IDs []any `yaml:"ids,omitempty"`

	// Versions are the history versions returned by changes.
	Versions []string `yaml:"versions,omitempty"`

	// Deleted is the document count removed by delete.
	Deleted *int `yaml:"deleted,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// ID selects the annotation.
	ID any `yaml:"id"`

	// Version is the head version (head_version) or the selecting tag
	// (record).
	Version string `yaml:"version,omitempty"`

	// Versions is the expected history, newest first (chain).
	Versions []string `yaml:"versions,omitempty"`

	// Expect is a subset match (record).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Operation names.
const (
	OpWrite   = "write"
	OpGet     = "get"
	OpFetch   = "fetch"
	OpQuery   = "query"
	OpChanges = "changes"
	OpDelete  = "delete"
)

// Assertion type constants.
const (
	AssertChain       = "chain"
	AssertHeadVersion = "head_version"
	AssertRecord      = "record"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Backend {
	case "", "badger", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}
	for i, step := range s.Steps {
		if err := validateStep(step, i); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, index int) error {
	switch step.Op {
	case OpWrite:
		if step.Payload == nil {
			return fmt.Errorf("steps[%d]: payload is required for write", index)
		}
	case OpGet, OpChanges, OpDelete:
		if step.ID == nil {
			return fmt.Errorf("steps[%d]: id is required for %s", index, step.Op)
		}
	case OpFetch:
		if len(step.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids are required for fetch", index)
		}
	case OpQuery:
		if step.Where == nil {
			return fmt.Errorf("steps[%d]: where is required for query", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.ID == nil {
		return fmt.Errorf("assertions[%d]: id is required", index)
	}
	switch a.Type {
	case AssertChain:
	case AssertHeadVersion:
		if a.Version == "" {
			return fmt.Errorf("assertions[%d]: version is required for head_version", index)
		}
	case AssertRecord:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
