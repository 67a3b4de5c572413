package harness

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/assetsync/internal/manifest"
)

// DefaultOrigin is used when a scenario does not name one.
const DefaultOrigin = "https://app.example"

// Scenario defines a lifecycle scenario: a sequence of deploys, requests
// and network changes, followed by assertions on the trace and the final
// cache state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Origin defaults to DefaultOrigin.
	Origin string `yaml:"origin,omitempty"`

	// Manifests are the builds the flow deploys, by name.
	Manifests map[string]yaml.Node `yaml:"manifests"`

	// Files is what the origin serves initially, by origin-relative path
	// (including any query). Unlisted paths return 404.
	Files map[string]string `yaml:"files,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`

	// Builds holds the validated Manifests, filled in by ParseScenario.
	Builds map[string]*manifest.Build `yaml:"-"`
}

// Step is one flow action. Exactly one of the action fields is set.
type Step struct {
	Deploy  string         `yaml:"deploy,omitempty"`
	Resume  string         `yaml:"resume,omitempty"`
	Fetch   string         `yaml:"fetch,omitempty"`
	Message string         `yaml:"message,omitempty"`
	Network *NetworkChange `yaml:"network,omitempty"`
	Restart bool           `yaml:"restart,omitempty"`

	// Expect validates the step's outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// NetworkChange alters what the origin serves.
type NetworkChange struct {
	// Serve maps paths to new 200 bodies.
	Serve map[string]string `yaml:"serve,omitempty"`

	// Remove makes paths return 404.
	Remove []string `yaml:"remove,omitempty"`

	// Fail makes requests for paths fail at the transport level.
	Fail []string `yaml:"fail,omitempty"`

	// Offline makes every request fail, or succeed again when false.
	Offline *bool `yaml:"offline,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is ok, declined or error. Defaults to ok.
	Outcome string `yaml:"outcome,omitempty"`

	// Result is a subset match against the step's result fields.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final cache state.
type Assertion struct {
	Type string `yaml:"type"`

	// Step, Target and Outcome select trace events (trace_contains,
	// trace_count).
	Step    string `yaml:"step,omitempty"`
	Target  string `yaml:"target,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Path is an origin-relative path (network_count).
	Path string `yaml:"path,omitempty"`

	// Count is the expected number of matches (trace_count, network_count).
	Count int `yaml:"count,omitempty"`

	// Partition is content, staging or manifest; Keys is its exact content
	// as logical keys (cached).
	Partition string   `yaml:"partition,omitempty"`
	Keys      []string `yaml:"keys,omitempty"`

	// Worker is the expected controller id, or "none"; Manifest names the
	// build it controls with (controller).
	Worker   string `yaml:"worker,omitempty"`
	Manifest string `yaml:"manifest,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertNetworkCount  = "network_count"
	AssertCached        = "cached"
	AssertController    = "controller"
)

// Step kinds as they appear in the trace.
const (
	StepDeploy  = "deploy"
	StepResume  = "resume"
	StepFetch   = "fetch"
	StepMessage = "message"
	StepNetwork = "network"
	StepRestart = "restart"
)

// Kind returns the step's action kind.
func (s Step) Kind() string {
	switch {
	case s.Deploy != "":
		return StepDeploy
	case s.Resume != "":
		return StepResume
	case s.Fetch != "":
		return StepFetch
	case s.Message != "":
		return StepMessage
	case s.Network != nil:
		return StepNetwork
	case s.Restart:
		return StepRestart
	}
	return ""
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Deploy != "", s.Resume != "", s.Fetch != "", s.Message != "", s.Network != nil, s.Restart} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.Origin == "" {
		scenario.Origin = DefaultOrigin
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and parses the manifests.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := manifest.ParseOrigin(s.Origin); err != nil {
		return err
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	s.Builds = make(map[string]*manifest.Build, len(s.Manifests))
	for _, name := range sortedNames(s.Manifests) {
		node := s.Manifests[name]
		data, err := yaml.Marshal(&node)
		if err != nil {
			return fmt.Errorf("manifests.%s: %w", name, err)
		}
		b, err := manifest.Parse(data, manifest.FormatYAML)
		if err != nil {
			return fmt.Errorf("manifests.%s: %w", name, err)
		}
		s.Builds[name] = b
	}

	for path := range s.Files {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("files: path %q must start with /", path)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(s, i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(s, i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, index int, step Step) error {
	if step.actions() != 1 {
		return fmt.Errorf("flow[%d]: exactly one action is required", index)
	}
	for _, name := range []string{step.Deploy, step.Resume} {
		if name != "" && s.Builds[name] == nil {
			return fmt.Errorf("flow[%d]: unknown manifest %q", index, name)
		}
	}
	if step.Fetch != "" && !strings.HasPrefix(step.Fetch, "/") && !strings.Contains(step.Fetch, "://") {
		return fmt.Errorf("flow[%d]: fetch target %q must be a path or an absolute URL", index, step.Fetch)
	}
	if step.Expect != nil {
		switch step.Expect.Outcome {
		case "", OutcomeOK, OutcomeDeclined, OutcomeError:
		default:
			return fmt.Errorf("flow[%d].expect: unknown outcome %q", index, step.Expect.Outcome)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertNetworkCount:
		if !strings.HasPrefix(a.Path, "/") {
			return fmt.Errorf("assertions[%d]: path is required for network_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for network_count", index)
		}
	case AssertCached:
		switch a.Partition {
		case "content", "staging", "manifest":
		default:
			return fmt.Errorf("assertions[%d]: partition must be content, staging or manifest", index)
		}
	case AssertController:
		if a.Worker == "" {
			return fmt.Errorf("assertions[%d]: worker is required for controller", index)
		}
		if a.Manifest != "" && s.Builds[a.Manifest] == nil {
			return fmt.Errorf("assertions[%d]: unknown manifest %q", index, a.Manifest)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func sortedNames(m map[string]yaml.Node) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
