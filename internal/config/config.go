// Package config centralizes the environment-variable knobs the core reads
// once at process start, plus an optional YAML overlay file for operators
// who would rather commit a config file than export a shell profile full
// of HUGE_AI_SEARCH_* vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the core reads at startup, from user-facing
// knobs like the grounding policy and response budgets down to internal
// ones like slot counts and heartbeat intervals. Env vars always win over
// the YAML overlay when both are set.
type Config struct {
	StrictGrounding bool   `yaml:"strict_grounding"`
	GuardrailPrompt string `yaml:"guardrail_prompt"`

	TotalBudgetText  time.Duration `yaml:"-"`
	TotalBudgetImage time.Duration `yaml:"-"`
	ExecTimeoutText  time.Duration `yaml:"-"`
	ExecTimeoutImage time.Duration `yaml:"-"`

	LogDir           string `yaml:"log_dir"`
	LogRetentionDays int    `yaml:"log_retention_days"`

	MaxLocalSlots int           `yaml:"max_local_slots"`
	SlotCount     int           `yaml:"slot_count"`
	LeaseMS       time.Duration `yaml:"-"`
	HeartbeatMS   time.Duration `yaml:"-"`
	CoordinatorDir string       `yaml:"coordinator_dir"`

	MaxSessions       int           `yaml:"max_sessions"`
	SessionIdleTTL    time.Duration `yaml:"-"`
	SessionMaxUses    int           `yaml:"session_max_uses"`
	CleanupInterval   time.Duration `yaml:"-"`
	SessionDataDir    string        `yaml:"session_data_dir"`

	LocalWaitBudget  time.Duration `yaml:"-"`
	GlobalWaitBudget time.Duration `yaml:"-"`
	CaptchaWaitBudget time.Duration `yaml:"-"`
	SafetyMargin     time.Duration `yaml:"-"`
	MinExecution     time.Duration `yaml:"-"`

	CooldownWindow time.Duration `yaml:"-"`

	AuditDBPath string `yaml:"audit_db_path"`
}

// overlay mirrors the yaml-unmarshalable duration fields as plain
// millisecond ints so the overlay file can express them without a custom
// yaml.Unmarshaler.
type overlay struct {
	Config                `yaml:",inline"`
	TotalBudgetTextMS     int64 `yaml:"total_budget_text_ms"`
	TotalBudgetImageMS    int64 `yaml:"total_budget_image_ms"`
	ExecTimeoutTextMS     int64 `yaml:"exec_timeout_text_ms"`
	ExecTimeoutImageMS    int64 `yaml:"exec_timeout_image_ms"`
	LeaseMS2              int64 `yaml:"lease_ms"`
	HeartbeatMS2          int64 `yaml:"heartbeat_ms"`
	SessionIdleTTLMS      int64 `yaml:"session_idle_ttl_ms"`
	CleanupIntervalMS     int64 `yaml:"cleanup_interval_ms"`
	LocalWaitBudgetMS     int64 `yaml:"local_wait_budget_ms"`
	GlobalWaitBudgetMS    int64 `yaml:"global_wait_budget_ms"`
	CaptchaWaitBudgetMS   int64 `yaml:"captcha_wait_budget_ms"`
	SafetyMarginMS        int64 `yaml:"safety_margin_ms"`
	MinExecutionMS        int64 `yaml:"min_execution_ms"`
	CooldownWindowMS      int64 `yaml:"cooldown_window_ms"`
}

// Default returns the spec's documented defaults before any env var or
// overlay file is applied.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".huge-ai-search")
	return Config{
		StrictGrounding:  true,
		GuardrailPrompt:  defaultGuardrailPrompt,
		TotalBudgetText:  55 * time.Second,
		TotalBudgetImage: 80 * time.Second,
		ExecTimeoutText:  50 * time.Second,
		ExecTimeoutImage: 75 * time.Second,
		LogDir:           filepath.Join(base, "logs"),
		LogRetentionDays: 14,
		MaxLocalSlots:    3,
		SlotCount:        4,
		LeaseMS:          30 * time.Second,
		HeartbeatMS:      10 * time.Second,
		CoordinatorDir:   filepath.Join(base, "coordinator", "google-search-slots"),
		MaxSessions:      20,
		SessionIdleTTL:   30 * time.Minute,
		SessionMaxUses:   50,
		CleanupInterval:  5 * time.Minute,
		SessionDataDir:   filepath.Join(base, "browser_data"),
		LocalWaitBudget:  15 * time.Second,
		GlobalWaitBudget: 20 * time.Second,
		CaptchaWaitBudget: 60 * time.Second,
		SafetyMargin:     3 * time.Second,
		MinExecution:     5 * time.Second,
		CooldownWindow:   300 * time.Second,
		AuditDBPath:      filepath.Join(base, "audit.db"),
	}
}

const defaultGuardrailPrompt = "请仅基于可验证的权威来源作答，如无法找到可靠来源，请明确说明，不要编造定义。"

// Load builds a Config starting from Default, applying the YAML file named
// by HUGE_AI_SEARCH_CONFIG if set, then applying every recognized env var
// on top (env always wins).
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("HUGE_AI_SEARCH_CONFIG"); path != "" {
		if err := applyOverlay(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config: overlay %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ov := overlay{Config: *cfg}
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return err
	}
	*cfg = ov.Config
	for dst, ms := range map[*time.Duration]int64{
		&cfg.TotalBudgetText:   ov.TotalBudgetTextMS,
		&cfg.TotalBudgetImage:  ov.TotalBudgetImageMS,
		&cfg.ExecTimeoutText:   ov.ExecTimeoutTextMS,
		&cfg.ExecTimeoutImage:  ov.ExecTimeoutImageMS,
		&cfg.LeaseMS:           ov.LeaseMS2,
		&cfg.HeartbeatMS:       ov.HeartbeatMS2,
		&cfg.SessionIdleTTL:    ov.SessionIdleTTLMS,
		&cfg.CleanupInterval:   ov.CleanupIntervalMS,
		&cfg.LocalWaitBudget:   ov.LocalWaitBudgetMS,
		&cfg.GlobalWaitBudget:  ov.GlobalWaitBudgetMS,
		&cfg.CaptchaWaitBudget: ov.CaptchaWaitBudgetMS,
		&cfg.SafetyMargin:      ov.SafetyMarginMS,
		&cfg.MinExecution:      ov.MinExecutionMS,
		&cfg.CooldownWindow:    ov.CooldownWindowMS,
	} {
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("HUGE_AI_SEARCH_STRICT_GROUNDING"); ok {
		cfg.StrictGrounding = v != "0"
	}
	if v := os.Getenv("HUGE_AI_SEARCH_GUARDRAIL_PROMPT"); v != "" {
		cfg.GuardrailPrompt = v
	}
	envDuration("HUGE_AI_SEARCH_TOTAL_BUDGET_TEXT_MS", &cfg.TotalBudgetText)
	envDuration("HUGE_AI_SEARCH_TOTAL_BUDGET_IMAGE_MS", &cfg.TotalBudgetImage)
	envDuration("HUGE_AI_SEARCH_EXECUTION_TIMEOUT_TEXT_MS", &cfg.ExecTimeoutText)
	envDuration("HUGE_AI_SEARCH_EXECUTION_TIMEOUT_IMAGE_MS", &cfg.ExecTimeoutImage)
	if v := os.Getenv("HUGE_AI_SEARCH_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v, ok := envInt("HUGE_AI_SEARCH_LOG_RETENTION_DAYS"); ok {
		cfg.LogRetentionDays = v
	}
}

func envDuration(name string, dst *time.Duration) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return
	}
	*dst = time.Duration(ms) * time.Millisecond
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// TotalBudget returns the applicable total budget for a request.
func (c Config) TotalBudget(hasImage bool) time.Duration {
	if hasImage {
		return c.TotalBudgetImage
	}
	return c.TotalBudgetText
}

// ExecutionTimeout returns the applicable per-attempt execution timeout.
func (c Config) ExecutionTimeout(hasImage bool) time.Duration {
	if hasImage {
		return c.ExecTimeoutImage
	}
	return c.ExecTimeoutText
}
