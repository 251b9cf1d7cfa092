// Copyright 2025 DeFlow
//
// Workflow Template Loader
//
// Starter workflow templates are shipped as YAML files and loaded at boot
// so new users can clone a working workflow instead of starting from a
// blank canvas. Templates support ${VAR_NAME} / ${VAR_NAME:-default}
// substitution so a deployment can parameterize contract addresses, chain
// ids, or default thresholds without forking the template file itself.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Legatia/deflow/pkg/workflow"
	"github.com/google/uuid"
)

// ==============================================================================
// Template Structures
// ==============================================================================

// WorkflowTemplate is a starter workflow definition loaded from YAML.
type WorkflowTemplate struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Category    string               `yaml:"category"`
	Tags        []string             `yaml:"tags"`
	Global      bool                 `yaml:"global"` // global templates (§6 region 13) vs user templates (region 14)
	Nodes       []TemplateNode       `yaml:"nodes"`
	Connections []TemplateConnection `yaml:"connections"`
	Trigger     TemplateTrigger      `yaml:"trigger"`
	RetryPolicy TemplateRetryPolicy  `yaml:"retry_policy"`
}

// TemplateNode mirrors a workflow.Node definition at template-authoring time.
type TemplateNode struct {
	ID     string                 `yaml:"id"`
	Type   string                 `yaml:"type"`
	Label  string                 `yaml:"label"`
	Config map[string]interface{} `yaml:"config"`
}

// TemplateConnection mirrors a workflow.Connection.
type TemplateConnection struct {
	FromNodeID string `yaml:"from_node_id"`
	ToNodeID   string `yaml:"to_node_id"`
	Condition  string `yaml:"condition,omitempty"`
}

// TemplateTrigger mirrors a workflow.Trigger.
type TemplateTrigger struct {
	Type           string   `yaml:"type"` // manual, cron, event, webhook
	CronExpression string   `yaml:"cron_expression,omitempty"`
	EventFilter    string   `yaml:"event_filter,omitempty"`
}

// TemplateRetryPolicy mirrors the exponential-backoff retry policy fields.
type TemplateRetryPolicy struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      Duration `yaml:"initial_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxDelay          Duration `yaml:"max_delay"`
}

// ==============================================================================
// Duration Type for YAML Parsing
// ==============================================================================

// Duration wraps time.Duration for YAML unmarshaling of "30s"-style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ==============================================================================
// Template Loading
// ==============================================================================

// LoadTemplate loads a single workflow template from a YAML file.
// Environment variables in the format ${VAR_NAME} or ${VAR_NAME:-default}
// are substituted before parsing.
func LoadTemplate(path string) (*WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var tmpl WorkflowTemplate
	if err := yaml.Unmarshal([]byte(expanded), &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}

	tmpl.applyDefaults()

	if err := tmpl.validate(); err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", path, err)
	}

	return &tmpl, nil
}

// LoadTemplateDir loads every *.yaml/*.yml file in dir as a WorkflowTemplate.
// A single malformed template does not abort the load - it is skipped and
// its error is returned alongside the templates that did load, so the
// caller can log-and-continue the way the rest of the node catalog does.
func LoadTemplateDir(dir string) ([]*WorkflowTemplate, []error) {
	var templates []*WorkflowTemplate
	var errs []error

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read template directory %s: %w", dir, err)}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		tmpl, err := LoadTemplate(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		templates = append(templates, tmpl)
	}

	return templates, errs
}

// applyDefaults fills in the retry policy defaults used when a template
// author omits them (same constants as the engine's package default).
func (t *WorkflowTemplate) applyDefaults() {
	if t.RetryPolicy.MaxAttempts == 0 {
		t.RetryPolicy.MaxAttempts = 3
	}
	if t.RetryPolicy.InitialDelay == 0 {
		t.RetryPolicy.InitialDelay = Duration(1 * time.Second)
	}
	if t.RetryPolicy.BackoffMultiplier == 0 {
		t.RetryPolicy.BackoffMultiplier = 2.0
	}
	if t.RetryPolicy.MaxDelay == 0 {
		t.RetryPolicy.MaxDelay = Duration(30 * time.Second)
	}
	if t.Trigger.Type == "" {
		t.Trigger.Type = "manual"
	}
}

// validate performs the template-authoring-time checks a human editing a
// YAML file would want surfaced immediately, rather than only at workflow
// activation. This is a lighter-weight pass than the full graph validator -
// it does not run cycle detection, and the API's template clone endpoint
// saves the resulting workflow without running the graph validator either.
func (t *WorkflowTemplate) validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if len(t.Nodes) == 0 {
		return fmt.Errorf("template %s must define at least one node", t.ID)
	}

	seen := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID == "" {
			return fmt.Errorf("template %s has a node with empty id", t.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("template %s has duplicate node id %s", t.ID, n.ID)
		}
		seen[n.ID] = true
	}

	for _, c := range t.Connections {
		if !seen[c.FromNodeID] {
			return fmt.Errorf("template %s connection references unknown node %s", t.ID, c.FromNodeID)
		}
		if !seen[c.ToNodeID] {
			return fmt.Errorf("template %s connection references unknown node %s", t.ID, c.ToNodeID)
		}
	}

	return nil
}

// ToWorkflow materializes a fresh, owner-scoped Workflow from this template,
// the way cloning a starter template for a new user works in the original
// dashboard: a new workflow ID is minted and the template stays immutable.
func (t *WorkflowTemplate) ToWorkflow(ownerID string) *workflow.Workflow {
	nodes := make([]workflow.Node, len(t.Nodes))
	for i, n := range t.Nodes {
		nodes[i] = workflow.Node{ID: n.ID, Type: n.Type, Label: n.Label, Config: n.Config}
	}

	connections := make([]workflow.Connection, len(t.Connections))
	for i, c := range t.Connections {
		connections[i] = workflow.Connection{FromNodeID: c.FromNodeID, ToNodeID: c.ToNodeID, Condition: c.Condition}
	}

	now := time.Now()
	return &workflow.Workflow{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        t.Name,
		Description: t.Description,
		Nodes:       nodes,
		Connections: connections,
		Trigger: workflow.Trigger{
			Type:           workflow.TriggerType(t.Trigger.Type),
			CronExpression: t.Trigger.CronExpression,
			EventFilter:    t.Trigger.EventFilter,
		},
		RetryPolicy: workflow.RetryPolicy{
			MaxAttempts:       t.RetryPolicy.MaxAttempts,
			InitialDelay:      t.RetryPolicy.InitialDelay.Duration(),
			BackoffMultiplier: t.RetryPolicy.BackoffMultiplier,
			MaxDelay:          t.RetryPolicy.MaxDelay.Duration(),
		},
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ==============================================================================
// Environment Variable Substitution
// ==============================================================================

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
