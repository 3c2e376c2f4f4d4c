package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/HelpLine/internal/backend"
	"github.com/BTreeMap/HelpLine/internal/escalation"
	"github.com/BTreeMap/HelpLine/internal/flow"
	"github.com/BTreeMap/HelpLine/internal/genai"
	"github.com/BTreeMap/HelpLine/internal/responder"
)

var configEnv = []string{
	"HELPLINE_API_BASE", "HELPLINE_API_TOKEN", "OPENAI_API_KEY", "HELPLINE_OPENAI_MODEL",
	"HELPLINE_STATE_DIR", "HELPLINE_OUTBOX_DSN", "HELPLINE_OUTBOX_SCHEDULE",
	"HELPLINE_ESCALATION_TIMEOUT", "HELPLINE_REPLY_TIMEOUT", "HELPLINE_TIMEZONE",
	"HELPLINE_FEEDBACK_THRESHOLD", "HELPLINE_DEBUG",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func parseArgs(t *testing.T, config Config, args ...string) Flags {
	t.Helper()
	fs := flag.NewFlagSet("helpline", flag.ContinueOnError)
	flags, err := parseCommandLineFlags(fs, args, config)
	if err != nil {
		t.Fatalf("parseCommandLineFlags failed: %v", err)
	}
	return flags
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	config := loadEnvironmentConfig()

	if config.StateDir != DefaultStateDir {
		t.Errorf("expected default state dir %q, got %q", DefaultStateDir, config.StateDir)
	}
	if config.OpenAIModel != genai.DefaultModel {
		t.Errorf("expected default model, got %q", config.OpenAIModel)
	}
	if config.OutboxSchedule != DefaultOutboxSchedule {
		t.Errorf("expected default schedule, got %q", config.OutboxSchedule)
	}
	if config.EscalationTimeout != escalation.DefaultTimeout || config.ReplyTimeout != responder.DefaultTimeout {
		t.Errorf("unexpected timeouts %v / %v", config.EscalationTimeout, config.ReplyTimeout)
	}
	if config.FeedbackThreshold != flow.DefaultFeedbackThreshold || config.Debug {
		t.Errorf("unexpected threshold or debug: %+v", config)
	}
	if config.APIBase != "" || config.OutboxDSN != "" {
		t.Errorf("expected offline defaults without a DSN, got %+v", config)
	}
}

func TestLoadEnvironmentConfigFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HELPLINE_API_BASE", "https://api.example.com")
	t.Setenv("HELPLINE_OUTBOX_DSN", "postgres://localhost/helpline")
	t.Setenv("HELPLINE_ESCALATION_TIMEOUT", "5s")
	t.Setenv("HELPLINE_REPLY_TIMEOUT", "bogus")
	t.Setenv("HELPLINE_FEEDBACK_THRESHOLD", "3")
	t.Setenv("HELPLINE_DEBUG", "yes")

	config := loadEnvironmentConfig()
	if config.APIBase != "https://api.example.com" || config.OutboxDSN != "postgres://localhost/helpline" {
		t.Errorf("env values not loaded: %+v", config)
	}
	if config.EscalationTimeout != 5*time.Second {
		t.Errorf("expected 5s escalation timeout, got %v", config.EscalationTimeout)
	}
	if config.ReplyTimeout != responder.DefaultTimeout {
		t.Errorf("invalid duration should fall back to default, got %v", config.ReplyTimeout)
	}
	if config.FeedbackThreshold != 3 || !config.Debug {
		t.Errorf("unexpected threshold or debug: %+v", config)
	}
}

func TestParseCommandLineFlagsOverrides(t *testing.T) {
	config := Config{
		StateDir:          DefaultStateDir,
		OutboxSchedule:    DefaultOutboxSchedule,
		EscalationTimeout: escalation.DefaultTimeout,
		ReplyTimeout:      responder.DefaultTimeout,
		FeedbackThreshold: 2,
	}
	flags := parseArgs(t, config,
		"-api-base", "http://localhost:8080",
		"-outbox-dsn", "/tmp/x.db",
		"-escalation-timeout", "3s",
		"-feedback-threshold", "-1",
		"-context", "impressora sem toner",
	)
	if *flags.apiBase != "http://localhost:8080" || *flags.outboxDSN != "/tmp/x.db" {
		t.Errorf("flags not applied")
	}
	if *flags.escalationTimeout != 3*time.Second || *flags.replyTimeout != responder.DefaultTimeout {
		t.Errorf("unexpected timeouts %v / %v", *flags.escalationTimeout, *flags.replyTimeout)
	}
	if *flags.feedbackThreshold != -1 || *flags.seedContext != "impressora sem toner" {
		t.Errorf("unexpected threshold or context")
	}
	if *flags.stateDir != DefaultStateDir || *flags.outboxSchedule != DefaultOutboxSchedule {
		t.Errorf("environment defaults not kept")
	}
}

func TestParseCommandLineFlagsResolvesOutboxDSN(t *testing.T) {
	config := Config{
		StateDir:          "/var/lib/helpline",
		EscalationTimeout: escalation.DefaultTimeout,
		ReplyTimeout:      responder.DefaultTimeout,
	}

	flags := parseArgs(t, config)
	want := filepath.Join("/var/lib/helpline", DefaultOutboxFileName)
	if *flags.outboxDSN != want {
		t.Errorf("expected default SQLite outbox %q, got %q", want, *flags.outboxDSN)
	}
	if !usesStateDir(flags) {
		t.Error("default outbox should take the state lock")
	}

	flags = parseArgs(t, config, "-outbox-dsn", MemoryOutboxDSN)
	if *flags.outboxDSN != "" || usesStateDir(flags) {
		t.Errorf("memory DSN should select the in-memory outbox, got %q", *flags.outboxDSN)
	}

	flags = parseArgs(t, config, "-state-dir", "/tmp/hl", "-outbox-dsn", "postgres://localhost/helpline")
	if *flags.outboxDSN != "postgres://localhost/helpline" {
		t.Errorf("explicit DSN should be kept, got %q", *flags.outboxDSN)
	}
}

func TestParseCommandLineFlagsRejectsBadTimeout(t *testing.T) {
	fs := flag.NewFlagSet("helpline", flag.ContinueOnError)
	_, err := parseCommandLineFlags(fs, []string{"-reply-timeout", "0s"}, Config{EscalationTimeout: time.Second})
	if err == nil {
		t.Error("expected error for non-positive timeout")
	}
}

func TestEnsureDirectoriesExist(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "outbox.db")
	flags := Flags{outboxDSN: &dsn}
	if err := ensureDirectoriesExist(flags); err != nil {
		t.Fatalf("ensureDirectoriesExist failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Errorf("directory not created: %v", err)
	}

	pg := "postgres://localhost/helpline"
	if err := ensureDirectoriesExist(Flags{outboxDSN: &pg}); err != nil {
		t.Errorf("postgres DSN should need no directory: %v", err)
	}
}

func TestUsesStateDir(t *testing.T) {
	tests := map[string]bool{
		"":                              false,
		"postgres://localhost/helpline": false,
		"/var/lib/helpline/outbox.db":   true,
	}
	for dsn, want := range tests {
		d := dsn
		if got := usesStateDir(Flags{outboxDSN: &d}); got != want {
			t.Errorf("usesStateDir(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := loadLocation(""); err != nil || loc != time.Local {
		t.Errorf("empty timezone should be local, got %v (%v)", loc, err)
	}
	if loc, err := loadLocation("UTC"); err != nil || loc.String() != "UTC" {
		t.Errorf("expected UTC, got %v (%v)", loc, err)
	}
	if _, err := loadLocation("Mars/Olympus"); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestBuildReplier(t *testing.T) {
	empty, key, model := "", "sk-test", genai.DefaultModel

	r, err := buildReplier(Flags{openaiKey: &empty, openaiModel: &model}, nil)
	if err != nil {
		t.Fatalf("buildReplier failed: %v", err)
	}
	if _, ok := r.(responder.KeywordReplier); !ok {
		t.Errorf("expected keyword replier offline, got %T", r)
	}

	api, err := backend.NewClient("http://localhost:1")
	if err != nil {
		t.Fatal(err)
	}
	r, _ = buildReplier(Flags{openaiKey: &empty, openaiModel: &model}, api)
	if _, ok := r.(*backend.Client); !ok {
		t.Errorf("expected backend replier, got %T", r)
	}

	r, err = buildReplier(Flags{openaiKey: &key, openaiModel: &model}, api)
	if err != nil {
		t.Fatalf("buildReplier failed: %v", err)
	}
	if _, ok := r.(*genai.Client); !ok {
		t.Errorf("expected OpenAI replier when a key is set, got %T", r)
	}
}

func TestBuildBackendOffline(t *testing.T) {
	empty := "  "
	api, err := buildBackend(Flags{apiBase: &empty})
	if err != nil || api != nil {
		t.Errorf("expected offline mode, got %v (%v)", api, err)
	}
}
