package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/fatih/color"

	"finagent/internal/agent"
	"finagent/internal/alerts"
	"finagent/internal/backtest"
	"finagent/internal/config"
	"finagent/internal/llm"
	"finagent/internal/market"
	"finagent/internal/portfolio"
	"finagent/internal/profile"
	"finagent/internal/tools"
)

// answerWidth is the render width for the final markdown answer.
const answerWidth = 100

// runChat handles "finagent chat": the interactive session. Alert
// checks run passively in the background, deferring to a dedicated
// worker if one is alive.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Logs go to stderr so the conversation stays readable.
	logger := newLogger(stderr, logLevel(cfg))
	logger.Debug("config loaded", "path", cfgPath)

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is not set in %s (or via environment expansion)", cfgPath)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	client := market.NewClient(cfg.Market, logger)
	positions, err := portfolio.Open(cfg.PortfolioDB())
	if err != nil {
		return fmt.Errorf("open portfolio: %w", err)
	}
	defer positions.Close()
	profiles := profile.NewStore(cfg.ProfileFile())
	alertStore := alerts.NewStore(cfg.Alerts.TasksFile)

	reg := tools.NewRegistry(logger)
	tools.RegisterMarketTools(reg, client)
	tools.RegisterPortfolioTools(reg, positions, client, logger)
	tools.RegisterProfileTools(reg, profiles)
	tools.RegisterAlertTools(reg, alertStore)
	tools.RegisterBacktestTools(reg, backtest.NewEngine(client))

	ag := agent.New(cfg.LLM, reg, profiles, nil, logger)
	tools.RegisterSystemTools(reg, ag.ReconfigureModel)

	// Passive alert checks while chatting; a live worker's heartbeat
	// makes these no-ops.
	notifier, cleanup := buildNotifier(ctx, cfg, logger)
	defer cleanup()
	hb := alerts.NewHeartbeat(cfg.Alerts.HeartbeatFile, logger)
	sched := alerts.NewScheduler(alertStore, hb, client, notifier, nil, logger, checkInterval(cfg))
	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	go sched.RunPassive(schedCtx)

	r := &repl{
		agent:       ag,
		cfg:         cfg,
		out:         stdout,
		prompt:      color.New(color.FgGreen, color.Bold),
		dim:         color.New(color.Faint),
		toolStyle:   color.New(color.FgYellow),
		errStyle:    color.New(color.FgRed),
		headerStyle: color.New(color.FgCyan),
	}
	return r.loop(ctx, stdin)
}

// repl owns the interactive read/eval loop and stream rendering.
type repl struct {
	agent *agent.Agent
	cfg   *config.Config
	out   io.Writer

	prompt      *color.Color
	dim         *color.Color
	toolStyle   *color.Color
	errStyle    *color.Color
	headerStyle *color.Color

	inReasoning bool
}

func (r *repl) loop(ctx context.Context, stdin io.Reader) error {
	r.headerStyle.Fprintf(r.out, "finagent (%s). /help for commands, /quit to exit.\n", r.agent.Model())

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.prompt.Fprint(r.out, "\nyou> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(line)
			if err != nil {
				r.errStyle.Fprintf(r.out, "%v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		r.turn(ctx, line)
	}
}

// turn runs one conversation turn. Ctrl-C cancels the turn, not the
// session; partial output is preserved in history.
func (r *repl) turn(ctx context.Context, input string) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			r.errStyle.Fprintln(r.out, "\n(interrupted)")
			cancel()
		case <-turnCtx.Done():
		}
	}()

	r.inReasoning = false
	err := r.agent.StreamChat(turnCtx, input, r.render)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.errStyle.Fprintf(r.out, "\nturn failed: %v\n", err)
	}
}

// render draws one stream event. Reasoning is dimmed, tool activity is
// highlighted, and the final answer is re-rendered as markdown when it
// carries formatting.
func (r *repl) render(ev llm.StreamEvent) {
	switch ev.Kind {
	case llm.KindReasoningStart:
		r.dim.Fprint(r.out, "\n[thinking] ")
		r.inReasoning = true
	case llm.KindReasoning:
		r.dim.Fprint(r.out, ev.Text)
	case llm.KindContent:
		if r.inReasoning {
			fmt.Fprintln(r.out)
			r.inReasoning = false
		}
		fmt.Fprint(r.out, ev.Text)
	case llm.KindToolCallStarted:
		r.toolStyle.Fprintf(r.out, "\n→ %s %s\n",
			ev.ToolCall.Function.Name, truncate(ev.ToolCall.Function.Arguments, 120))
	case llm.KindToolResult:
		r.dim.Fprintf(r.out, "%s\n", truncate(ev.ToolResult, 300))
	case llm.KindAnswer:
		fmt.Fprintln(r.out)
		if looksLikeMarkdown(ev.Text) {
			r.dim.Fprintln(r.out, strings.Repeat("─", answerWidth/2))
			fmt.Fprint(r.out, string(markdown.Render(ev.Text, answerWidth, 2)))
		}
	case llm.KindError:
		if !errors.Is(ev.Err, context.Canceled) {
			r.errStyle.Fprintf(r.out, "\nerror: %v\n", ev.Err)
		}
	}
}

// command handles slash commands; returns true when the session should
// end.
func (r *repl) command(line string) (bool, error) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  /clear           Reset the conversation")
		fmt.Fprintln(r.out, "  /save [name]     Save the conversation")
		fmt.Fprintln(r.out, "  /load <name>     Load a saved conversation")
		fmt.Fprintln(r.out, "  /sessions        List saved conversations")
		fmt.Fprintln(r.out, "  /model <name>    Switch the model")
		fmt.Fprintln(r.out, "  /quit            Exit")
		return false, nil
	case "/clear":
		r.agent.Clear()
		fmt.Fprintln(r.out, "Conversation cleared.")
		return false, nil
	case "/save":
		path, err := r.agent.SaveSession(r.cfg.SessionsDir(), arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Saved to %s\n", path)
		return false, nil
	case "/load":
		if arg == "" {
			return false, fmt.Errorf("usage: /load <name>")
		}
		if !strings.HasSuffix(arg, ".json") {
			arg += ".json"
		}
		if err := r.agent.LoadSession(r.cfg.SessionsDir() + "/" + arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Loaded %s (%d messages)\n", arg, len(r.agent.History())-1)
		return false, nil
	case "/sessions":
		names, err := agent.ListSessions(r.cfg.SessionsDir())
		if err != nil {
			return false, err
		}
		if len(names) == 0 {
			fmt.Fprintln(r.out, "No saved sessions.")
			return false, nil
		}
		for _, n := range names {
			fmt.Fprintf(r.out, "  %s\n", n)
		}
		return false, nil
	case "/model":
		if arg == "" {
			fmt.Fprintf(r.out, "Current model: %s\n", r.agent.Model())
			return false, nil
		}
		if err := r.agent.ReconfigureModel(arg); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Switched to %s\n", arg)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// looksLikeMarkdown reports whether the answer is worth re-rendering:
// headings, emphasis, tables or lists.
func looksLikeMarkdown(s string) bool {
	for _, marker := range []string{"# ", "**", "\n- ", "\n| ", "```"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
