// Command replayer loads a recorded conversation, re-checks it against the tool-call
// protocol, and optionally runs the configured condenser over it offline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"contextcore/pkg/cancel"
	"contextcore/pkg/compliance"
	"contextcore/pkg/condenser"
	"contextcore/pkg/config"
	"contextcore/pkg/contextmgr"
	"contextcore/pkg/event"
	"contextcore/pkg/eventlog"
	"contextcore/pkg/llm/factory"
	"contextcore/pkg/logx"
	"contextcore/pkg/metrics"
	"contextcore/pkg/utils"
	"contextcore/pkg/version"
)

// secretsPasswordEnv holds the secrets file password for non-interactive runs.
const secretsPasswordEnv = "CONTEXTCORE_SECRETS_PASSWORD"

//nolint:gochecknoglobals // replaced in tests
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// ReplayConfig holds configuration for the replayer
type ReplayConfig struct {
	LogFile        string
	DBPath         string
	ConversationID string
	ConfigFile     string
	SecretsFile    string
	PrometheusURL  string
	Condense       bool
	Metrics        bool
	Verbose        bool
}

// Report is what one replay found.
type Report struct {
	Violations   []compliance.Violation
	Condensation *event.Condensation
	CondenseErr  error
	Events       int
	ViewSize     int
	SafeCuts     int
	Tokens       int
}

func main() {
	var cfg ReplayConfig
	var showHelp, showVersion bool

	flag.StringVar(&cfg.LogFile, "log", "", "Path to an events JSONL file")
	flag.StringVar(&cfg.DBPath, "db", "", "Path to an SQLite event store (alternative to -log)")
	flag.StringVar(&cfg.ConversationID, "conversation", "", "Conversation to load from -db")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to a YAML config file (default: built-in defaults)")
	flag.StringVar(&cfg.SecretsFile, "secrets", "", "Encrypted secrets file holding provider API keys")
	flag.StringVar(&cfg.PrometheusURL, "prometheus", "", "Prometheus server to query for fleet-wide condensation and violation totals")
	flag.BoolVar(&cfg.Condense, "condense", false, "Run the configured condenser over the replayed view")
	flag.BoolVar(&cfg.Metrics, "metrics", false, "Dump prometheus metrics after the replay")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose output")
	flag.BoolVar(&showHelp, "help", false, "Show help")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Conversation Replayer - Offline Context Diagnostics\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s -log <events.jsonl> [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -db <events.db> -conversation <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Description:\n")
		fmt.Fprintf(os.Stderr, "  Replays a recorded event log through the compliance monitor, rebuilds\n")
		fmt.Fprintf(os.Stderr, "  the view the model would see and optionally previews a condensation.\n")
		fmt.Fprintf(os.Stderr, "  Exits with status 1 when protocol violations are found.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -log logs/events-2026-06-10.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -log logs/events.jsonl -config contextcore.yaml -condense -metrics\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("replayer %s\n", version.String())
		os.Exit(0)
	}

	if cfg.LogFile == "" && cfg.DBPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -log or -db is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if cfg.DBPath != "" && cfg.ConversationID == "" {
		fmt.Fprintf(os.Stderr, "Error: -conversation is required with -db\n\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode, err := runReplayer(ctx, cfg, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode)
}

// runReplayer performs one replay and prints the report to out. fancy selects the
// decorated terminal style.
func runReplayer(ctx context.Context, rc ReplayConfig, out io.Writer, fancy bool) (int, error) {
	if rc.Verbose {
		logx.SetDebug(true)
	}

	cfg, err := loadConfig(rc.ConfigFile)
	if err != nil {
		return 1, err
	}
	if rc.SecretsFile == "" {
		rc.SecretsFile = cfg.SecretsFile
	}
	if rc.SecretsFile != "" {
		if err := unlockSecrets(rc.SecretsFile); err != nil {
			return 1, err
		}
		fmt.Fprintf(out, "Unlocked secrets: %s\n", strings.Join(config.GetDecryptedSecretNames(), ", "))
	}
	since := time.Now().UTC().Truncate(time.Millisecond)

	events, source, err := readEvents(rc)
	if err != nil {
		return 1, err
	}

	convID := rc.ConversationID
	if convID == "" {
		convID = source
	}
	ctx = logx.WithConversationID(ctx, convID)

	reg := metrics.NewRegistry(cfg.Metrics.Namespace)
	report, err := replay(ctx, cfg, convID, events, reg, rc.Condense)
	if err != nil {
		return 1, err
	}

	printReport(out, source, report, fancy)
	printLogEntries(out, logx.GetRecentLogEntries("", since), rc.Verbose, fancy)

	if rc.Metrics {
		fmt.Fprintln(out)
		if err := metrics.WriteText(out, reg.Gatherer()); err != nil {
			return 1, err
		}
	}

	if rc.PrometheusURL != "" {
		if err := printFleetStats(ctx, out, rc.PrometheusURL, cfg.Metrics.Namespace); err != nil {
			return 1, err
		}
	}

	if len(report.Violations) > 0 {
		return 1, nil
	}
	return 0, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// unlockSecrets decrypts the secrets file with a password from the environment or, on a
// terminal, from a prompt.
func unlockSecrets(path string) error {
	password := os.Getenv(secretsPasswordEnv)
	if password == "" {
		if !stdinIsTerminal() {
			return fmt.Errorf("secrets file %s needs a password: set %s", path, secretsPasswordEnv)
		}
		fmt.Fprint(os.Stderr, "Secrets password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}
	if err := config.LoadSecretsFile(path, password); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	return nil
}

// readEvents loads the recorded events and names their source.
func readEvents(rc ReplayConfig) ([]*event.Event, string, error) {
	if rc.LogFile != "" {
		events, err := eventlog.ReadEvents(rc.LogFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse event log: %w", err)
		}
		return events, rc.LogFile, nil
	}

	db, err := eventlog.OpenSQLite(rc.DBPath)
	if err != nil {
		return nil, "", logx.Wrap(err, "open event store")
	}
	defer func() { _ = db.Close() }()

	store, err := eventlog.NewSQLiteStore(db, rc.ConversationID)
	if err != nil {
		return nil, "", err
	}
	events, err := eventlog.New(eventlog.WithStore(store)).All()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read conversation %s: %w", rc.ConversationID, err)
	}
	return events, rc.ConversationID, nil
}

// replay rebuilds the conversation in memory. The source is never written to; a previewed
// condensation is reported, not appended.
func replay(ctx context.Context, cfg *config.Config, convID string, events []*event.Event,
	reg *metrics.Registry, condense bool) (*Report, error) {
	log := eventlog.New()
	if err := eventlog.Replay(log, events); err != nil {
		return nil, err
	}

	var reporters []compliance.Reporter
	reporters = append(reporters, compliance.NewMetricsReporter(reg))
	if cfg.Compliance.ShouldLogViolations() {
		reporters = append(reporters, compliance.NewLogReporter(nil, convID))
	}
	monitorOpts := []compliance.Option{compliance.WithReporters(reporters...)}
	if !cfg.Compliance.IsEnabled() {
		monitorOpts = append(monitorOpts, compliance.WithChecks())
	}

	counter := utils.DefaultCounter()
	cm, err := contextmgr.NewContextManager(convID,
		contextmgr.WithLog(log),
		contextmgr.WithMonitor(compliance.New(monitorOpts...)),
		contextmgr.WithRecorder(reg),
		contextmgr.WithTokenCounter(counter),
	)
	if err != nil {
		return nil, err
	}

	v := cm.View()
	report := &Report{
		Violations: cm.Violations(),
		Events:     log.Len(),
		ViewSize:   v.Len(),
		SafeCuts:   v.ManipulationIndices().Len(),
		Tokens:     cm.CountTokens(),
	}

	if !condense {
		return report, nil
	}

	c, err := buildCondenser(ctx, cfg, reg, counter)
	if err != nil {
		return nil, err
	}

	// Ctrl-C cancels an in-flight summary through the token bound to ctx.
	tok := cancel.New()
	stopWatch := context.AfterFunc(ctx, tok.Cancel)
	defer stopWatch()

	outcome := condenser.Condense(cancel.WithToken(ctx, tok), c, v, condenser.WithRecorder(reg))
	report.Condensation = outcome.Condensation
	report.CondenseErr = outcome.Err
	if outcome.Condensed() {
		report.ViewSize = outcome.View.Len()
	}
	return report, nil
}

func buildCondenser(ctx context.Context, cfg *config.Config, reg *metrics.Registry, counter *utils.TokenCounter) (condenser.Condenser, error) {
	deps := condenser.Deps{SummarizerConfig: cfg.Summarizer, Counter: counter}
	if cfg.Summarizer != nil {
		client, err := factory.NewClient(ctx, cfg.Summarizer, reg, logx.NewLogger("summarizer"))
		if err != nil {
			return nil, fmt.Errorf("failed to create summarizer: %w", err)
		}
		deps.Summarizer = client
	}
	c, err := condenser.FromConfig(&cfg.Condenser, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build condenser: %w", err)
	}
	return c, nil
}

func printReport(out io.Writer, source string, r *Report, fancy bool) {
	ok, bad, info := "OK  ", "FAIL", "    "
	if fancy {
		ok, bad, info = "✅", "❌", "📊"
	}

	fmt.Fprintf(out, "%s Replayed %d events from %s\n", info, r.Events, source)
	fmt.Fprintf(out, "%s View: %d events, %d safe cut points, ~%d tokens\n", info, r.ViewSize, r.SafeCuts, r.Tokens)

	if len(r.Violations) == 0 {
		fmt.Fprintf(out, "%s No protocol violations\n", ok)
	} else {
		fmt.Fprintf(out, "%s %d protocol violations:\n", bad, len(r.Violations))
		for _, v := range r.Violations {
			fmt.Fprintf(out, "      • %s\n", v)
		}
	}

	switch {
	case r.Condensation != nil:
		data, err := json.MarshalIndent(r.Condensation, "      ", "  ")
		if err != nil {
			data = []byte(err.Error())
		}
		fmt.Fprintf(out, "%s Condensation forgets %d events (view after: %d):\n      %s\n",
			info, len(r.Condensation.ForgottenEventIDs), r.ViewSize, strings.TrimSpace(string(data)))
	case r.CondenseErr != nil:
		fmt.Fprintf(out, "%s Condenser skipped: %v\n", info, r.CondenseErr)
	}
}

// printLogEntries counts the warnings and errors logged while replaying. Verbose runs list them.
func printLogEntries(out io.Writer, entries []logx.LogEntry, verbose, fancy bool) {
	var notable []logx.LogEntry
	warnings, errs := 0, 0
	for _, e := range entries {
		switch logx.Level(e.Level) {
		case logx.LevelWarn:
			warnings++
		case logx.LevelError:
			errs++
		default:
			continue
		}
		notable = append(notable, e)
	}
	if len(notable) == 0 {
		return
	}

	info := "    "
	if fancy {
		info = "📝"
	}
	fmt.Fprintf(out, "%s %d warnings, %d errors logged during replay\n", info, warnings, errs)
	if verbose {
		for _, e := range notable {
			fmt.Fprintf(out, "      [%s] %s: %s\n", e.Component, e.Level, e.Message)
		}
	}
}

// printFleetStats reports totals scraped from every process exporting this namespace.
func printFleetStats(ctx context.Context, out io.Writer, url, namespace string) error {
	q, err := metrics.NewQueryService(url, namespace)
	if err != nil {
		return err
	}

	stats, err := q.CondensationStats(ctx)
	if err != nil {
		return err
	}
	violations, err := q.ViolationCounts(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nFleet totals from %s:\n", url)
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		fmt.Fprintf(out, "  %-16s condensed=%.0f failed=%.0f forgotten=%.0f\n", name, s.Condensed, s.Failed, s.ForgottenEvents)
	}

	props := make([]string, 0, len(violations))
	for p := range violations {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		fmt.Fprintf(out, "  %-32s violations=%.0f\n", p, violations[p])
	}
	return nil
}
