package gatekeeper

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bot's YAML document: credentials, the guarded chat, timing,
// user-facing message templates and the challenge bank itself
type Config struct {
	Token             string     `yaml:"token"`
	Chat              int64      `yaml:"chat"`
	SuperAdmin        int64      `yaml:"super_admin"`
	GraceSeconds      int        `yaml:"grace_seconds"`
	BanSeconds        int        `yaml:"ban_seconds"`
	QuizSeconds       int        `yaml:"quiz_seconds"`
	AllowUnchallenged bool       `yaml:"allow_unchallenged"`
	Messages          Messages   `yaml:"messages"`
	Challenges        []Challenge `yaml:"challenges"`
}

// Messages holds the user-facing templates. Placeholders use {name} form
// and are expanded with Expand.
type Messages struct {
	Start     string `yaml:"start"`
	Greet     string `yaml:"greet"`
	Success   string `yaml:"success"`
	Retry     string `yaml:"retry"`
	Other     string `yaml:"other"`
	Pass      string `yaml:"pass"`
	Kick      string `yaml:"kick"`
	NotKick   string `yaml:"not_kick"`
	AdminPass string `yaml:"admin_pass"`
	AdminKick string `yaml:"admin_kick"`
	PassBtn   string `yaml:"pass_btn"`
	KickBtn   string `yaml:"kick_btn"`
	Pending   string `yaml:"pending"`
	Reloaded  string `yaml:"reloaded"`
	Corrupt   string `yaml:"corrupt"`
}

// DefaultMessages returns the built-in message templates
func DefaultMessages() Messages {
	return Messages{
		Start:     "Guarding chat {chat}. You are {user}.",
		Greet:     "Welcome! Answer within {time} seconds to verify you are human:\n\n{question}",
		Success:   "Correct!",
		Retry:     "Wrong answer. You may rejoin in {time} seconds.",
		Other:     "This challenge is not for you.",
		Pass:      "{user} answered \"{ans}\" and passed verification.",
		Kick:      "{user} answered \"{ans}\" and failed verification.",
		NotKick:   "{user} failed verification, but I lack permission to remove them.",
		AdminPass: "{admin} approved {user}.",
		AdminKick: "{admin} removed {user}.",
		PassBtn:   "Approve",
		KickBtn:   "Remove",
		Pending:   "Verifications in flight; reload deferred.",
		Reloaded:  "Reloaded {num} challenges.",
		Corrupt:   "Could not load configuration: {text}",
	}
}

// LoadConfig reads and validates a config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a config document, applies defaults and validates
// everything except the token (the web console and banklint work on
// documents without one)
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{
		GraceSeconds:      120,
		BanSeconds:        300,
		QuizSeconds:       30,
		AllowUnchallenged: true,
		Messages:          DefaultMessages(),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks timing and the challenge bank. An empty bank is legal
// (the engine falls back to the allow_unchallenged policy) but a malformed
// challenge is not.
func (c *Config) Validate() error {
	if c.GraceSeconds <= 0 {
		return fmt.Errorf("grace_seconds must be positive, got %d", c.GraceSeconds)
	}
	if c.BanSeconds < 0 {
		return fmt.Errorf("ban_seconds must not be negative, got %d", c.BanSeconds)
	}
	for i, ch := range c.Challenges {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("challenge %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single challenge for completeness
func (ch Challenge) Validate() error {
	if strings.TrimSpace(ch.Question) == "" {
		return fmt.Errorf("question is empty")
	}
	if strings.TrimSpace(ch.Answer) == "" {
		return fmt.Errorf("answer is empty")
	}
	if len(ch.Wrong) == 0 {
		return fmt.Errorf("no wrong answers")
	}
	for i, w := range ch.Wrong {
		if strings.TrimSpace(w) == "" {
			return fmt.Errorf("wrong answer %d is empty", i)
		}
	}
	return nil
}

// SaveConfig writes the config document back to disk
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Grace returns the challenge grace period
func (c *Config) Grace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

// BanTime returns how long a removed member stays banned
func (c *Config) BanTime() time.Duration {
	return time.Duration(c.BanSeconds) * time.Second
}

// Expand substitutes {name} placeholders in a message template
func Expand(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
