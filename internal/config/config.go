package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the controller process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	Switch SwitchConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// SwitchConfig describes the media-switch instances this process manages.
type SwitchConfig struct {
	// Nodes comes from FS_NODES, a JSON list of switch instances.
	Nodes []NodeConfig

	// StartupCommands comes from FS_STARTUP_COMMANDS and applies to every
	// node. Accepts a JSON list of {"command","arg"} pairs or an object of
	// command->arg entries (object form runs in sorted key order so
	// bring-up is deterministic).
	StartupCommands []StartupCommand

	// DefaultMaxChannels applies to nodes that do not set their own ceiling.
	DefaultMaxChannels int
}

type NodeConfig struct {
	Host        string `json:"host"`
	Instance    string `json:"instance"`
	Addr        string `json:"addr"`
	Password    string `json:"password"`
	MaxChannels int    `json:"max_channels"`
}

type StartupCommand struct {
	Command string `json:"command"`
	Arg     string `json:"arg"`
}

// DBConfig is optional: CDR persistence is enabled only when a host is set.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

func (c DBConfig) Enabled() bool { return c.Host != "" }

// RedisConfig is optional: the notification bus falls back to the in-memory
// publisher when no host is set.
type RedisConfig struct {
	Host string
	Port int
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	if raw := strings.TrimSpace(os.Getenv("FS_NODES")); raw != "" {
		nodes, err := parseNodes(raw)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Switch.Nodes = nodes
	}
	if raw := strings.TrimSpace(os.Getenv("FS_STARTUP_COMMANDS")); raw != "" {
		cmds, err := ParseStartupCommands(raw)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Switch.StartupCommands = cmds
	}
	if raw := strings.TrimSpace(os.Getenv("FS_MAX_CHANNELS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("FS_MAX_CHANNELS must be an integer, got %q", raw))
		}
		c.Switch.DefaultMaxChannels = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Enabled() {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Enabled() {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.TokenTTL = mustDuration("JWT_TOKEN_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if len(c.Switch.Nodes) == 0 {
		errs = append(errs, errors.New("FS_NODES must name at least one switch instance"))
	}
	seen := make(map[string]struct{})
	for i, n := range c.Switch.Nodes {
		if n.Host == "" {
			errs = append(errs, fmt.Errorf("FS_NODES[%d]: host is required", i))
		}
		if n.Instance == "" {
			errs = append(errs, fmt.Errorf("FS_NODES[%d]: instance is required", i))
		}
		key := n.Instance + "@" + n.Host
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("FS_NODES[%d]: duplicate node %q", i, key))
		}
		seen[key] = struct{}{}
	}
	for i, cmd := range c.Switch.StartupCommands {
		if cmd.Command == "" {
			errs = append(errs, fmt.Errorf("FS_STARTUP_COMMANDS[%d]: command is required", i))
		}
	}
	if c.Switch.DefaultMaxChannels < 0 {
		errs = append(errs, errors.New("FS_MAX_CHANNELS must not be negative"))
	}

	if c.DB.Enabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Enabled() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.TokenTTL <= 0 {
		// Default: short-lived service tokens.
		c.Auth.TokenTTL = 15 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func parseNodes(raw string) ([]NodeConfig, error) {
	var nodes []NodeConfig
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, fmt.Errorf("FS_NODES must be a JSON list of node objects: %w", err)
	}
	return nodes, nil
}

// ParseStartupCommands accepts both supported shapes: a JSON list of
// {"command","arg"} pairs, executed in order, or a JSON object of
// command->arg entries, executed in sorted key order.
func ParseStartupCommands(raw string) ([]StartupCommand, error) {
	var list []StartupCommand
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list, nil
	}

	var object map[string]string
	if err := json.Unmarshal([]byte(raw), &object); err != nil {
		return nil, fmt.Errorf("FS_STARTUP_COMMANDS must be a JSON list or object: %w", err)
	}
	keys := make([]string, 0, len(object))
	for k := range object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]StartupCommand, 0, len(keys))
	for _, k := range keys {
		out = append(out, StartupCommand{Command: k, Arg: object[k]})
	}
	return out, nil
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
