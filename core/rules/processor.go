// Package rules maps UI events to utterances using YAML rule files.
//
// Rules carrying a package name are tried before fallback rules without one.
// Within each group, rule files are consulted in the order they were first
// added and rules in file order. The first rule whose filter matches wins.
package rules

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/koscakluka/ema-access/core/events"
	"github.com/koscakluka/ema-access/core/utterance"
	validation "github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Processor struct {
	schema *validation.Schema

	mu    sync.RWMutex
	sets  map[string][]compiledRule
	order []string
}

func NewProcessor() (*Processor, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Processor{schema: schema, sets: map[string][]compiledRule{}}, nil
}

// Load reads the rule file at path and adds it under that path.
func (p *Processor) Load(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rule set: %w", err)
	}
	return p.Add(ctx, path, data)
}

// Add validates data and installs it as the rule set called name, replacing
// any earlier set with that name. A rejected set leaves the processor
// unchanged.
func (p *Processor) Add(ctx context.Context, name string, data []byte) error {
	_, span := tracer.Start(ctx, "load rule set")
	defer span.End()
	span.SetAttributes(attribute.String("rules.name", name))

	set, err := parse(p.schema, data)
	if err == nil {
		var compiled []compiledRule
		compiled, err = compile(set)
		if err == nil {
			p.install(name, compiled)
			span.SetAttributes(attribute.Int("rules.count", len(compiled)))
			logger.Debug("loaded rule set", "name", name, "rules", len(compiled))
			return nil
		}
	}

	err = fmt.Errorf("failed to load rule set %s: %w", name, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "invalid rule set")
	return err
}

func (p *Processor) install(name string, compiled []compiledRule) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.sets[name]; !ok {
		p.order = append(p.order, name)
	}
	p.sets[name] = compiled
}

// Remove drops the rule set called name.
func (p *Processor) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.sets[name]; !ok {
		return false
	}
	delete(p.sets, name)
	p.order = slices.DeleteFunc(p.order, func(existing string) bool { return existing == name })
	return true
}

// Names lists the installed rule sets in consultation order.
func (p *Processor) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

func (p *Processor) Match(e events.Event) (utterance.Utterance, bool) {
	if p == nil || e == nil {
		return utterance.Utterance{}, false
	}

	snapshot := events.Snap(e)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if snapshot.Package != "" {
		if u, ok := p.matchGroup(snapshot, snapshot.Package); ok {
			return u, true
		}
	}
	return p.matchGroup(snapshot, "")
}

func (p *Processor) matchGroup(snapshot events.Snapshot, pkg string) (utterance.Utterance, bool) {
	for _, name := range p.order {
		for _, rule := range p.sets[name] {
			if rule.pkg != pkg {
				continue
			}
			if u, ok := tryRule(rule, snapshot); ok {
				return u, true
			}
		}
	}
	return utterance.Utterance{}, false
}

// tryRule applies one rule. A rule that fails or panics is skipped.
func tryRule(rule compiledRule, snapshot events.Snapshot) (u utterance.Utterance, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("rule panicked", "rule", rule.name, "kind", string(snapshot.Kind), "panic", recovered)
			u, ok = utterance.Utterance{}, false
		}
	}()

	if !rule.matches(snapshot) {
		return utterance.Utterance{}, false
	}

	u, err := rule.render(snapshot)
	if err != nil {
		logger.Warn("skipping rule", "rule", rule.name, "kind", string(snapshot.Kind), "error", err)
		return utterance.Utterance{}, false
	}
	return u, true
}
