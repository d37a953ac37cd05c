package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koscakluka/ema-access/core/events"
	"github.com/koscakluka/ema-access/core/keycombo"
	"github.com/koscakluka/ema-access/core/tree/memtree"
)

// script is a recorded session:
//
//	tree:
//	  id: root
//	  children:
//	    - {id: ok, text: OK, focusable: true, clickable: true}
//	steps:
//	  - event: {kind: window.state_changed, title: Settings}
//	  - key: alt+right
//	  - wait: 200ms
type script struct {
	Tree  *memtree.Node `yaml:"tree"`
	Steps []step        `yaml:"steps"`
}

// step does exactly one thing: emit an event, press a chord or wait.
type step struct {
	Event *scriptEvent  `yaml:"event"`
	Key   string        `yaml:"key"`
	Wait  time.Duration `yaml:"wait"`
}

type scriptEvent struct {
	Kind        string   `yaml:"kind"`
	Package     string   `yaml:"package"`
	Source      string   `yaml:"source"`
	Class       string   `yaml:"class"`
	Text        []string `yaml:"text"`
	Description string   `yaml:"description"`
	Title       string   `yaml:"title"`
	Ticker      string   `yaml:"ticker"`
	Before      string   `yaml:"before"`
	Password    bool     `yaml:"password"`
}

func loadScript(path string) (*script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	var s script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	if s.Tree == nil {
		return nil, errors.New("script has no tree")
	}

	var errs []error
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s step) validate() error {
	set := 0
	if s.Event != nil {
		set++
		if s.Event.Kind == "" {
			return errors.New("event has no kind")
		}
	}
	if s.Key != "" {
		set++
		if _, _, err := keycombo.ParseChord(s.Key); err != nil {
			return err
		}
	}
	if s.Wait != 0 {
		set++
	}
	if set != 1 {
		return errors.New("a step needs exactly one of event, key or wait")
	}
	return nil
}

// build turns the scripted event into the matching event type.
func (e scriptEvent) build() events.Event {
	var opts []events.RebaseOption
	if e.Package != "" {
		opts = append(opts, events.WithPackage(e.Package))
	}

	kind := events.Kind(e.Kind)
	switch kind {
	case events.KindWindowStateChanged:
		return events.NewWindowStateChanged(e.Title, e.Class, opts...)
	case events.KindWindowContentChanged:
		return events.NewWindowContentChanged(e.Source, opts...)
	case events.KindNotificationStateChanged:
		return events.NewNotification(e.Ticker, e.Text, opts...)
	case events.KindAnnouncement:
		return events.NewAnnouncement(firstOr(e.Text, e.Title), opts...)
	case events.KindViewTextChanged:
		text := firstOr(e.Text, "")
		from, added, removed := textDiff(e.Before, text)
		changed := events.NewTextChanged(e.Source, e.Before, text, from, added, removed, opts...)
		changed.ClassName = e.Class
		changed.Password = e.Password
		return changed
	}

	view := events.NewViewEvent(kind, e.Source, e.Class, e.Text, opts...)
	view.ContentDescription = e.Description
	view.Password = e.Password
	return view
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

// textDiff finds the single edited span between before and after.
func textDiff(before, after string) (from, added, removed int) {
	b, a := []rune(before), []rune(after)
	for from < len(b) && from < len(a) && b[from] == a[from] {
		from++
	}

	tail := 0
	for tail < len(b)-from && tail < len(a)-from && b[len(b)-1-tail] == a[len(a)-1-tail] {
		tail++
	}
	return from, len(a) - from - tail, len(b) - from - tail
}
