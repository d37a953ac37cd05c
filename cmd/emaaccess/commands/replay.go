package commands

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-access/cmd/emaaccess/internal/console"
	feedback "github.com/koscakluka/ema-access/core"
	"github.com/koscakluka/ema-access/core/audio"
	"github.com/koscakluka/ema-access/core/audio/miniaudio"
	"github.com/koscakluka/ema-access/core/coalescer"
	"github.com/koscakluka/ema-access/core/config"
	enginews "github.com/koscakluka/ema-access/core/engine/websocket"
	"github.com/koscakluka/ema-access/core/events"
	"github.com/koscakluka/ema-access/core/keycombo"
	"github.com/koscakluka/ema-access/core/rules"
	"github.com/koscakluka/ema-access/core/speech"
	"github.com/koscakluka/ema-access/core/tree/memtree"
	"github.com/koscakluka/ema-access/core/utterance"
)

//go:embed default_rules.yaml
var defaultRules []byte

const (
	engineConsole   = "console"
	engineWebsocket = "websocket"

	focusBacklog = 64
)

type replayOptions struct {
	configPath string
	engine     string
	audio      bool
	width      int
	stepDelay  time.Duration
}

func newReplayCommand() *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a scripted session against an in-memory UI tree",
		Long: `Replay builds a pipeline over the tree described in the script and runs
its steps in order. Spoken text is printed unless --engine websocket is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (.toml, .yaml)")
	cmd.Flags().StringVar(&opts.engine, "engine", engineConsole, "speech engine binding: console or websocket")
	cmd.Flags().BoolVar(&opts.audio, "audio", false, "play earcons on the default audio device")
	cmd.Flags().IntVar(&opts.width, "width", 72, "column console speech is wrapped at")
	cmd.Flags().DurationVar(&opts.stepDelay, "step-delay", 150*time.Millisecond, "pause after every step")
	return cmd
}

func runReplay(ctx context.Context, out io.Writer, opts *replayOptions, scriptPath string) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Default()
	if opts.configPath != "" {
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}

	s, err := loadScript(scriptPath)
	if err != nil {
		return err
	}
	tree, err := memtree.New(s.Tree)
	if err != nil {
		return fmt.Errorf("failed to build tree: %w", err)
	}

	writer := console.NewWriter(out, console.WithWidth(opts.width))
	pipelineOpts := []feedback.PipelineOption{
		feedback.WithConfig(cfg),
		feedback.WithTree(tree),
	}

	ruleOpts, err := ruleOptions(ctx, cfg)
	if err != nil {
		return err
	}
	pipelineOpts = append(pipelineOpts, ruleOpts...)

	binding, err := engineBinding(opts.engine, cfg, writer)
	if err != nil {
		return err
	}
	pipelineOpts = append(pipelineOpts, feedback.WithEngineBinding(binding))

	player, err := feedbackPlayer(opts.audio, cfg, writer)
	if err != nil {
		return err
	}
	pipelineOpts = append(pipelineOpts, feedback.WithFeedbackPlayer(player))

	if cfg.Input.ComboFile != "" {
		combos, err := keycombo.LoadCombos(cfg.Input.ComboFile)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, feedback.WithCombos(combos))
	}

	p := feedback.NewPipeline(pipelineOpts...)
	defer func() {
		err = errors.Join(err, p.Close())
	}()

	if startErr := p.Start(ctx); startErr != nil {
		slog.Warn("pipeline started with errors", "error", startErr)
	}

	// Focus changes are reported from inside node actions, where the
	// pipeline must not be re-entered.
	focused := make(chan events.Event, focusBacklog)
	tree.SetFocusHook(func(node *memtree.Node) {
		e := events.NewViewEvent(events.KindViewAccessibilityFocused, node.ID(), node.ClassName, []string{node.Text})
		e.ContentDescription = node.Description
		select {
		case focused <- e:
		default:
			slog.Warn("dropping focus event", "node", node.ID())
		}
	})

	done := make(chan struct{})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for {
			select {
			case e := <-focused:
				p.HandleEvent(e)
			case <-done:
				return
			}
		}
	}()
	defer func() {
		tree.SetFocusHook(nil)
		close(done)
		<-forwarded
	}()

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Debug("replaying step", "step", i+1)
		runStep(p, st)
		time.Sleep(opts.stepDelay)
	}
	return nil
}

func runStep(p *feedback.Pipeline, st step) {
	switch {
	case st.Event != nil:
		p.HandleEvent(st.Event.build())
	case st.Key != "":
		// Chords were validated when the script was loaded.
		modifiers, key, _ := keycombo.ParseChord(st.Key)
		if !p.HandleKey(keycombo.KeyDown(key, modifiers)) {
			slog.Debug("key chord not consumed", "chord", st.Key)
		}
		p.HandleKey(keycombo.KeyUp(key, modifiers))
	case st.Wait > 0:
		time.Sleep(st.Wait)
	}
}

// ruleOptions consults the configured rule files first and falls back to
// the built-in rules.
func ruleOptions(ctx context.Context, cfg *config.Config) ([]feedback.PipelineOption, error) {
	builtin, err := rules.NewProcessor()
	if err != nil {
		return nil, err
	}
	if err := builtin.Add(ctx, "builtin", defaultRules); err != nil {
		return nil, fmt.Errorf("failed to load built-in rules: %w", err)
	}
	if len(cfg.Rules.Files) == 0 {
		return []feedback.PipelineOption{feedback.WithRuleProcessor(builtin)}, nil
	}

	configured, err := rules.NewProcessor()
	if err != nil {
		return nil, err
	}
	opts := []feedback.PipelineOption{feedback.WithRuleProcessor(chainedRules{configured, builtin})}

	if cfg.Rules.Watch {
		watcher, err := rules.NewWatcher(configured, cfg.Rules.Files...)
		if err != nil {
			return nil, err
		}
		return append(opts, feedback.WithRuleWatcher(watcher)), nil
	}

	var errs []error
	for _, path := range cfg.Rules.Files {
		if err := configured.Load(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return opts, nil
}

// chainedRules asks each processor in turn.
type chainedRules []coalescer.RuleProcessor

func (c chainedRules) Match(e events.Event) (utterance.Utterance, bool) {
	for _, processor := range c {
		if u, ok := processor.Match(e); ok {
			return u, true
		}
	}
	return utterance.Utterance{}, false
}

func engineBinding(name string, cfg *config.Config, writer *console.Writer) (speech.EngineBinding, error) {
	switch name {
	case engineConsole:
		return console.NewBinding(writer), nil
	case engineWebsocket:
		binding, err := enginews.NewBinding(cfg.Speech.EngineURL)
		if err != nil {
			return nil, err
		}
		return binding, nil
	default:
		return nil, fmt.Errorf("unknown engine binding %q", name)
	}
}

func feedbackPlayer(useAudio bool, cfg *config.Config, writer *console.Writer) (speech.FeedbackPlayer, error) {
	if !useAudio {
		return console.NewPlayer(writer), nil
	}

	overrides := make(audio.ToneTable, len(cfg.Feedback.Tones))
	for id, tone := range cfg.Feedback.Tones {
		overrides[id] = audio.Tone{Frequency: tone.Frequency, Duration: tone.Duration}
	}
	player, err := miniaudio.NewPlayer(
		miniaudio.WithTones(audio.DefaultTones().With(overrides)),
		miniaudio.WithVolume(cfg.Feedback.EarconVolume),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	return player, nil
}
