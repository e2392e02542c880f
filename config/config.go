package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// KindPolicy decides how a severity kind moves through the approval gate.
// When RequireApproval is false the alert auto-publishes after AutoDelayMin
// minutes without a human decision.
type KindPolicy struct {
	RequireApproval bool `yaml:"require_approval"`
	AutoDelayMin    int  `yaml:"auto_delay_min"`
}

// Config holds all application configuration.
type Config struct {
	TelegramToken  string  `yaml:"telegram_token"`
	ChatID         string  `yaml:"chat_id"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids"`

	ApprovalTTLMin      int `yaml:"approval_ttl_min"`
	RemindBeforeMin     int `yaml:"remind_before_min"`
	DecisionMaxWaitSecs int `yaml:"decision_max_wait_secs"`
	PollIntervalSecs    int `yaml:"poll_interval_secs"`

	FeedURL         string `yaml:"feed_url"`
	ForecastRegion  string `yaml:"forecast_region"`
	DisplayAreaName string `yaml:"display_area_name"`
	MoreInfoURL     string `yaml:"more_info_url"`

	StateBackend string `yaml:"state_backend"` // "file" or "sqlite"
	StatePath    string `yaml:"state_path"`
	RSSPath      string `yaml:"rss_path"`

	EnableXPosting  bool   `yaml:"enable_x_posting"`
	EnableFBPosting bool   `yaml:"enable_fb_posting"`
	XClientID       string `yaml:"x_client_id"`
	XClientSecret   string `yaml:"x_client_secret"`
	XRefreshToken   string `yaml:"x_refresh_token"`
	FBPageID        string `yaml:"fb_page_id"`
	FBPageToken     string `yaml:"fb_page_access_token"`

	GlobalCooldownMin int                   `yaml:"global_cooldown_min"`
	CooldownMin       map[string]int        `yaml:"cooldown_min"`
	ApprovalPolicy    map[string]KindPolicy `yaml:"approval_policy"`

	TickIntervalMin  int    `yaml:"tick_interval_min"`
	Timezone         string `yaml:"timezone"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs"`
	LogLevel         string `yaml:"log_level"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("TAY_BOT_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

var defaultCooldownMin = map[string]int{
	"warning":   60,
	"watch":     120,
	"advisory":  180,
	"statement": 240,
	"alert":     180,
	"allclear":  60,
	"default":   180,
}

func applyDefaults(cfg *Config) {
	if cfg.ApprovalTTLMin == 0 {
		cfg.ApprovalTTLMin = 60
	}
	if cfg.RemindBeforeMin == 0 {
		cfg.RemindBeforeMin = 5
	}
	if cfg.DecisionMaxWaitSecs == 0 {
		cfg.DecisionMaxWaitSecs = 1800
	}
	if cfg.PollIntervalSecs == 0 {
		cfg.PollIntervalSecs = 2
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = "https://weather.gc.ca/rss/battleboard/onrm94_e.xml"
	}
	if cfg.ForecastRegion == "" {
		cfg.ForecastRegion = "Midland - Coldwater - Orr Lake"
	}
	if cfg.DisplayAreaName == "" {
		cfg.DisplayAreaName = "Tay Township area"
	}
	if cfg.MoreInfoURL == "" {
		cfg.MoreInfoURL = "https://weather.gc.ca/en/location/index.html?coords=44.751,-79.768"
	}
	if cfg.StateBackend == "" {
		cfg.StateBackend = "file"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "./state.json"
	}
	if cfg.RSSPath == "" {
		cfg.RSSPath = "./tay-weather.xml"
	}
	if cfg.GlobalCooldownMin == 0 {
		cfg.GlobalCooldownMin = 5
	}
	if cfg.CooldownMin == nil {
		cfg.CooldownMin = map[string]int{}
	}
	for kind, mins := range defaultCooldownMin {
		if _, ok := cfg.CooldownMin[kind]; !ok {
			cfg.CooldownMin[kind] = mins
		}
	}
	if cfg.ApprovalPolicy == nil {
		cfg.ApprovalPolicy = map[string]KindPolicy{}
	}
	if _, ok := cfg.ApprovalPolicy["allclear"]; !ok {
		cfg.ApprovalPolicy["allclear"] = KindPolicy{RequireApproval: false}
	}
	if cfg.TickIntervalMin == 0 {
		cfg.TickIntervalMin = 10
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 20
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.ChatID = strings.TrimSpace(v)
	}
	if v := os.Getenv("TELEGRAM_ALLOWED_USER_IDS"); v != "" {
		cfg.AllowedUserIDs = parseUserIDs(v)
	}
	if v := os.Getenv("TELEGRAM_APPROVAL_TTL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ApprovalTTLMin = n
		}
	}
	if v := os.Getenv("TELEGRAM_REMIND_BEFORE_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RemindBeforeMin = n
		}
	}
	if v := os.Getenv("ALERT_FEED_URL"); v != "" {
		cfg.FeedURL = v
	}
	if v := os.Getenv("TAY_BOT_STATE"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("ENABLE_X_POSTING"); v != "" {
		cfg.EnableXPosting = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ENABLE_FB_POSTING"); v != "" {
		cfg.EnableFBPosting = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("X_CLIENT_ID"); v != "" {
		cfg.XClientID = strings.TrimSpace(v)
	}
	if v := os.Getenv("X_CLIENT_SECRET"); v != "" {
		cfg.XClientSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("X_REFRESH_TOKEN"); v != "" {
		cfg.XRefreshToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("FB_PAGE_ID"); v != "" {
		cfg.FBPageID = strings.TrimSpace(v)
	}
	if v := os.Getenv("FB_PAGE_ACCESS_TOKEN"); v != "" {
		cfg.FBPageToken = strings.TrimSpace(v)
	}
}

func parseUserIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func validate(cfg *Config) error {
	if cfg.TelegramToken == "" {
		return fmt.Errorf("telegram_token is required")
	}
	if cfg.ChatID == "" {
		return fmt.Errorf("chat_id is required")
	}
	if cfg.StateBackend != "file" && cfg.StateBackend != "sqlite" {
		return fmt.Errorf("state_backend must be \"file\" or \"sqlite\", got %q", cfg.StateBackend)
	}
	if cfg.EnableXPosting {
		if cfg.XClientID == "" || cfg.XClientSecret == "" || cfg.XRefreshToken == "" {
			return fmt.Errorf("x posting enabled but x_client_id, x_client_secret or x_refresh_token missing")
		}
	}
	if cfg.EnableFBPosting {
		if cfg.FBPageID == "" || cfg.FBPageToken == "" {
			return fmt.Errorf("fb posting enabled but fb_page_id or fb_page_access_token missing")
		}
	}
	for kind, p := range cfg.ApprovalPolicy {
		if p.AutoDelayMin < 0 {
			return fmt.Errorf("approval_policy for %q has negative auto_delay_min", kind)
		}
	}
	return nil
}

// CooldownFor returns the cooldown interval in minutes for a severity kind,
// falling back to the default interval for unknown kinds.
func (c *Config) CooldownFor(kind string) int {
	if mins, ok := c.CooldownMin[kind]; ok {
		return mins
	}
	return c.CooldownMin["default"]
}

// PolicyFor returns the approval policy for a severity kind. Kinds without an
// explicit entry require human approval.
func (c *Config) PolicyFor(kind string) KindPolicy {
	if p, ok := c.ApprovalPolicy[kind]; ok {
		return p
	}
	return KindPolicy{RequireApproval: true}
}
