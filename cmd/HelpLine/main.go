package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/HelpLine/internal/backend"
	"github.com/BTreeMap/HelpLine/internal/console"
	"github.com/BTreeMap/HelpLine/internal/escalation"
	"github.com/BTreeMap/HelpLine/internal/flow"
	"github.com/BTreeMap/HelpLine/internal/genai"
	"github.com/BTreeMap/HelpLine/internal/lockfile"
	"github.com/BTreeMap/HelpLine/internal/responder"
	"github.com/BTreeMap/HelpLine/internal/scheduler"
	"github.com/BTreeMap/HelpLine/internal/store"
	"github.com/BTreeMap/HelpLine/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lock file and the SQLite outbox
	DefaultStateDir = ".helpline"
	// DefaultOutboxFileName is the SQLite outbox created in the state directory
	DefaultOutboxFileName = "outbox.db"
	// DefaultOutboxSchedule drives provisional ticket delivery
	DefaultOutboxSchedule = "@every 1m"
	// MemoryOutboxDSN selects the in-memory outbox, lost on exit
	MemoryOutboxDSN = "memory"
)

func main() {
	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(*flags.debug)

	if err := run(flags); err != nil {
		slog.Error("HelpLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HelpLine exited successfully")
}

// Config holds environment configuration
type Config struct {
	APIBase           string
	APIToken          string
	OpenAIKey         string
	OpenAIModel       string
	StateDir          string
	OutboxDSN         string
	OutboxSchedule    string
	EscalationTimeout time.Duration
	ReplyTimeout      time.Duration
	Timezone          string
	FeedbackThreshold int
	Debug             bool
}

// Flags holds command line flag values
type Flags struct {
	apiBase           *string
	apiToken          *string
	openaiKey         *string
	openaiModel       *string
	stateDir          *string
	outboxDSN         *string
	outboxSchedule    *string
	escalationTimeout *time.Duration
	replyTimeout      *time.Duration
	timezone          *string
	feedbackThreshold *int
	debug             *bool
	seedContext       *string
}

// initializeLogger sets up structured logging on stderr so it does not mix with the chat.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		APIBase:           os.Getenv("HELPLINE_API_BASE"),
		APIToken:          os.Getenv("HELPLINE_API_TOKEN"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("HELPLINE_OPENAI_MODEL"),
		StateDir:          os.Getenv("HELPLINE_STATE_DIR"),
		OutboxDSN:         os.Getenv("HELPLINE_OUTBOX_DSN"),
		OutboxSchedule:    os.Getenv("HELPLINE_OUTBOX_SCHEDULE"),
		EscalationTimeout: util.ParseDurationEnv("HELPLINE_ESCALATION_TIMEOUT", escalation.DefaultTimeout),
		ReplyTimeout:      util.ParseDurationEnv("HELPLINE_REPLY_TIMEOUT", responder.DefaultTimeout),
		Timezone:          os.Getenv("HELPLINE_TIMEZONE"),
		FeedbackThreshold: util.ParseIntEnv("HELPLINE_FEEDBACK_THRESHOLD", flow.DefaultFeedbackThreshold),
		Debug:             util.ParseBoolEnv("HELPLINE_DEBUG", false),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.OpenAIModel == "" {
		config.OpenAIModel = genai.DefaultModel
	}
	if config.OutboxSchedule == "" {
		config.OutboxSchedule = DefaultOutboxSchedule
	}

	slog.Debug("environment variables loaded",
		"HELPLINE_API_BASE", config.APIBase,
		"HELPLINE_API_TOKEN_SET", config.APIToken != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"HELPLINE_STATE_DIR", config.StateDir,
		"HELPLINE_OUTBOX_DSN_SET", config.OutboxDSN != "",
		"HELPLINE_OUTBOX_SCHEDULE", config.OutboxSchedule)
	return config
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		apiBase:           fs.String("api-base", config.APIBase, "backend base URL, empty for offline mode (overrides $HELPLINE_API_BASE)"),
		apiToken:          fs.String("api-token", config.APIToken, "backend bearer token (overrides $HELPLINE_API_TOKEN)"),
		openaiKey:         fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key for replies (overrides $OPENAI_API_KEY)"),
		openaiModel:       fs.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $HELPLINE_OPENAI_MODEL)"),
		stateDir:          fs.String("state-dir", config.StateDir, "state directory for the lock and SQLite outbox (overrides $HELPLINE_STATE_DIR)"),
		outboxDSN:         fs.String("outbox-dsn", config.OutboxDSN, "outbox DSN: postgres://, a SQLite path or \"memory\"; empty uses the state dir (overrides $HELPLINE_OUTBOX_DSN)"),
		outboxSchedule:    fs.String("outbox-schedule", config.OutboxSchedule, "cron schedule for outbox delivery (overrides $HELPLINE_OUTBOX_SCHEDULE)"),
		escalationTimeout: fs.Duration("escalation-timeout", config.EscalationTimeout, "bound for backend calls during escalation (overrides $HELPLINE_ESCALATION_TIMEOUT)"),
		replyTimeout:      fs.Duration("reply-timeout", config.ReplyTimeout, "bound for assistant replies (overrides $HELPLINE_REPLY_TIMEOUT)"),
		timezone:          fs.String("timezone", config.Timezone, "IANA zone for business hours (overrides $HELPLINE_TIMEZONE)"),
		feedbackThreshold: fs.Int("feedback-threshold", config.FeedbackThreshold, "not-resolved answers before escalation, negative disables (overrides $HELPLINE_FEEDBACK_THRESHOLD)"),
		debug:             fs.Bool("debug", config.Debug, "debug logging (overrides $HELPLINE_DEBUG)"),
		seedContext:       fs.String("context", "", "open the chat with this text"),
	}
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if *flags.escalationTimeout <= 0 || *flags.replyTimeout <= 0 {
		return flags, errors.New("timeouts must be positive")
	}
	*flags.outboxDSN = resolveOutboxDSN(*flags.outboxDSN, *flags.stateDir)
	return flags, nil
}

// resolveOutboxDSN maps an unset DSN to the SQLite file in the state directory
// and MemoryOutboxDSN to the empty DSN understood by store.Open.
func resolveOutboxDSN(dsn, stateDir string) string {
	switch strings.TrimSpace(dsn) {
	case "":
		return filepath.Join(stateDir, DefaultOutboxFileName)
	case MemoryOutboxDSN:
		return ""
	}
	return dsn
}

// ensureDirectoriesExist creates the directory of a file-based outbox
func ensureDirectoriesExist(flags Flags) error {
	dsn := *flags.outboxDSN
	if dsn == "" || store.DetectDSNType(dsn) == store.DriverPostgres {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create outbox directory %s: %w", dir, err)
	}
	return nil
}

// usesStateDir reports whether the outbox is a SQLite file that needs the state lock.
func usesStateDir(flags Flags) bool {
	return *flags.outboxDSN != "" && store.DetectDSNType(*flags.outboxDSN) == store.DriverSQLite
}

// loadLocation resolves the business-hours zone; empty means local time.
func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// buildBackend returns the backend client, or nil in offline mode.
func buildBackend(flags Flags) (*backend.Client, error) {
	if strings.TrimSpace(*flags.apiBase) == "" {
		slog.Info("No backend configured, running offline")
		return nil, nil
	}
	var opts []backend.Option
	if *flags.apiToken != "" {
		opts = append(opts, backend.WithToken(*flags.apiToken))
	}
	return backend.NewClient(*flags.apiBase, opts...)
}

// buildReplier picks the assistant: OpenAI when a key is set, then the backend
// chat endpoint, then the canned keyword replies.
func buildReplier(flags Flags, api *backend.Client) (responder.Replier, error) {
	if *flags.openaiKey != "" {
		slog.Info("Using OpenAI for free-form replies", "model", *flags.openaiModel)
		return genai.NewClient(genai.WithAPIKey(*flags.openaiKey), genai.WithModel(*flags.openaiModel))
	}
	if api != nil {
		slog.Info("Using backend chat endpoint for free-form replies")
		return api, nil
	}
	slog.Info("Using canned keyword replies")
	return responder.KeywordReplier{}, nil
}

// buildCoordinatorOptions constructs escalation options
func buildCoordinatorOptions(flags Flags, loc *time.Location, queue escalation.DraftQueue) []escalation.Option {
	return []escalation.Option{
		escalation.WithTimeout(*flags.escalationTimeout),
		escalation.WithBusinessHours(escalation.DefaultBusinessHours(loc)),
		escalation.WithDraftQueue(queue),
	}
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := loadLocation(*flags.timezone)
	if err != nil {
		return err
	}

	if usesStateDir(flags) {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}
	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}

	outbox, err := store.Open(*flags.outboxDSN)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer outbox.Close()

	api, err := buildBackend(flags)
	if err != nil {
		return err
	}
	replier, err := buildReplier(flags, api)
	if err != nil {
		return err
	}

	// Typed nils must not reach the interfaces.
	var identity escalation.IdentityService
	var tickets escalation.TicketService
	if api != nil {
		identity, tickets = api, api
		sender := store.NewOutboxSender(outbox, identity, tickets, store.WithCallTimeout(*flags.escalationTimeout))
		if err := sender.RecoverStale(); err != nil {
			slog.Warn("Outbox stale recovery failed", "error", err)
		}
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob(*flags.outboxSchedule, func() { sender.Poll(ctx) }); err != nil {
			return fmt.Errorf("invalid outbox schedule %q: %w", *flags.outboxSchedule, err)
		}
	} else {
		slog.Info("Offline mode, provisional tickets stay in the outbox until a backend is configured")
	}

	registry := flow.DefaultRegistry()
	session := flow.NewSession(
		flow.WithRegistry(registry),
		flow.WithResponder(responder.New(replier, responder.WithTimeout(*flags.replyTimeout))),
	)
	coord := escalation.NewCoordinator(identity, tickets, buildCoordinatorOptions(flags, loc, outbox)...)

	c := console.New(session, coord, os.Stdout,
		console.WithRegistry(registry),
		console.WithFeedbackPolicy(flow.FeedbackPolicy{Threshold: *flags.feedbackThreshold}),
	)
	c.Seed(ctx, *flags.seedContext)
	if err := c.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
