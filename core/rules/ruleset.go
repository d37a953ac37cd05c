package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-access/core/events"
	"github.com/koscakluka/ema-access/core/utterance"
	validation "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// RuleSet is the document stored in a rule file:
//
//	rules:
//	  - package: com.example.mail
//	    filter:
//	      kinds: [view.clicked]
//	      class_name: Button
//	    output:
//	      text: "{{.Text}} button"
//	      earcons: [tick]
type RuleSet struct {
	Rules []Rule `json:"rules" yaml:"rules" jsonschema:"minItems=1"`
}

type Rule struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Package limits the rule to events from one application. Rules without
	// a package are fallbacks.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
	Filter  Filter `json:"filter,omitempty" yaml:"filter,omitempty"`
	Output  Output `json:"output" yaml:"output"`
}

// Filter selects events. Empty fields match anything.
type Filter struct {
	Kinds     []string `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	ClassName string   `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	// Text is a regular expression matched against the event text.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Output describes the utterance a matching event produces.
type Output struct {
	// Text is a text/template executed against an events.Snapshot.
	Text    string             `json:"text,omitempty" yaml:"text,omitempty"`
	Earcons []string           `json:"earcons,omitempty" yaml:"earcons,omitempty"`
	Haptics []string           `json:"haptics,omitempty" yaml:"haptics,omitempty"`
	Mode    string             `json:"mode,omitempty" yaml:"mode,omitempty" jsonschema:"enum=interrupt,enum=queue,enum=uninterruptible"`
	Flags   []string           `json:"flags,omitempty" yaml:"flags,omitempty"`
	Params  map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

const schemaURL = "ema-access://rules.schema.json"

// Schema returns the JSON schema every rule file is validated against.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	return reflector.Reflect(&RuleSet{})
}

// SchemaJSON returns Schema indented for printing.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule schema: %w", err)
	}
	return data, nil
}

func compileSchema() (*validation.Schema, error) {
	data, err := json.Marshal(Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule schema: %w", err)
	}

	compiler := validation.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add rule schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule schema: %w", err)
	}
	return schema, nil
}

// parse validates data against the schema and decodes it. YAML is decoded
// into plain values and re-encoded as JSON so the validator sees JSON types.
func parse(schema *validation.Schema, data []byte) (RuleSet, error) {
	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return RuleSet{}, fmt.Errorf("failed to decode rule set: %w", err)
	}

	encoded, err := json.Marshal(document)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to convert rule set: %w", err)
	}
	var instance any
	if err := json.Unmarshal(encoded, &instance); err != nil {
		return RuleSet{}, fmt.Errorf("failed to convert rule set: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return RuleSet{}, fmt.Errorf("rule set does not match schema: %w", err)
	}

	var set RuleSet
	if err := json.Unmarshal(encoded, &set); err != nil {
		return RuleSet{}, fmt.Errorf("failed to decode rule set: %w", err)
	}
	return set, nil
}

type compiledRule struct {
	name      string
	pkg       string
	kinds     map[events.Kind]bool
	className string
	text      *regexp.Regexp
	template  *template.Template

	earcons []string
	haptics []string
	mode    utterance.QueueMode
	flags   utterance.Flag
	params  utterance.Params
}

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"join":  strings.Join,
	"trim":  strings.TrimSpace,
}

func compile(set RuleSet) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(set.Rules))
	var errs []error
	for i, rule := range set.Rules {
		c, err := compileRule(rule)
		if err != nil {
			label := rule.Name
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			errs = append(errs, fmt.Errorf("rule %s: %w", label, err))
			continue
		}
		compiled = append(compiled, c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return compiled, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	c := compiledRule{
		name:      rule.Name,
		pkg:       rule.Package,
		className: rule.Filter.ClassName,
		earcons:   rule.Output.Earcons,
		haptics:   rule.Output.Haptics,
	}

	if len(rule.Filter.Kinds) > 0 {
		c.kinds = make(map[events.Kind]bool, len(rule.Filter.Kinds))
		for _, kind := range rule.Filter.Kinds {
			c.kinds[events.Kind(kind)] = true
		}
	}

	var errs []error
	if rule.Filter.Text != "" {
		text, err := regexp.Compile(rule.Filter.Text)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to compile text filter: %w", err))
		}
		c.text = text
	}

	if rule.Output.Text != "" {
		tmpl, err := template.New(rule.Name).Funcs(templateFuncs).Option("missingkey=zero").Parse(rule.Output.Text)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to parse output template: %w", err))
		}
		c.template = tmpl
	}

	mode, ok := utterance.ParseQueueMode(rule.Output.Mode)
	if !ok {
		errs = append(errs, fmt.Errorf("unknown queue mode %q", rule.Output.Mode))
	}
	c.mode = mode

	for _, name := range rule.Output.Flags {
		flag, ok := utterance.ParseFlag(name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown flag %q", name))
			continue
		}
		c.flags |= flag
	}

	if len(rule.Output.Params) > 0 {
		c.params = make(utterance.Params, len(rule.Output.Params))
		for name, value := range rule.Output.Params {
			param := utterance.Param(name)
			switch param {
			case utterance.ParamPan, utterance.ParamPitch, utterance.ParamRate, utterance.ParamVolume:
				c.params[param] = value
			default:
				errs = append(errs, fmt.Errorf("unknown param %q", name))
			}
		}
	}

	if c.template == nil && len(c.earcons) == 0 && len(c.haptics) == 0 {
		errs = append(errs, errors.New("output produces no feedback"))
	}

	return c, errors.Join(errs...)
}

func (r compiledRule) matches(snapshot events.Snapshot) bool {
	if r.kinds != nil && !r.kinds[snapshot.Kind] {
		return false
	}
	if r.className != "" && r.className != snapshot.ClassName {
		return false
	}
	if r.text != nil && !r.text.MatchString(snapshot.Text) {
		return false
	}
	return true
}

func (r compiledRule) render(snapshot events.Snapshot) (utterance.Utterance, error) {
	fragment := utterance.Fragment{
		Earcons: append([]string(nil), r.earcons...),
		Haptics: append([]string(nil), r.haptics...),
	}
	if len(r.params) > 0 {
		fragment.Params = make(utterance.Params, len(r.params))
		for param, value := range r.params {
			fragment.Params[param] = value
		}
	}

	if r.template != nil {
		var text strings.Builder
		if err := r.template.Execute(&text, snapshot); err != nil {
			return utterance.Utterance{}, fmt.Errorf("failed to render output: %w", err)
		}
		fragment.Text = strings.TrimSpace(text.String())
	}

	return utterance.Utterance{
		Fragments: []utterance.Fragment{fragment},
		Mode:      r.mode,
		Flags:     r.flags,
	}, nil
}
