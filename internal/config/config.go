package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/The-Promised-Neverland/hostwatch/pkg/idcommands"
	"github.com/joho/godotenv"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidValue      = errors.New("invalid configuration value")
)

const (
	BackendNative  = "native"
	BackendSystemd = "systemd"

	defaultAPIURL = "https://api.telegram.org"
)

// Config holds agent configuration. Fields are unexported to prevent modification.
type Config struct {
	serverID    string
	recipientID string
	botToken    string
	apiURL      string

	services []string

	diskThreshold float64
	cpuThreshold  float64
	memThreshold  float64
	diskPath      string

	monitorInterval time.Duration
	pollIdleDelay   time.Duration
	pollTimeout     time.Duration
	serviceTimeout  time.Duration
	serviceBackend  string

	allowRun     bool
	runTimeout   time.Duration
	runMaxOutput int
	runAsUser    string

	notifyRate  float64
	notifyBurst int

	stateFile string
	logFile   string
	logLevel  string

	serviceName        string
	serviceDisplayName string
	serviceDescription string
}

func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("ProgramData")
		if base == "" {
			base = `C:\ProgramData`
		}
		return filepath.Join(base, "HostWatch")
	default:
		return "/var/lib/hostwatch"
	}
}

func defaultDiskPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

func defaultServices() string {
	if runtime.GOOS == "windows" {
		return "W3SVC,SQLSERVERAGENT,WinRM,sshd"
	}
	return "sshd,cron"
}

func homeFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, name)
}

// New loads the configuration once. Values come from the process environment,
// then envFile (ignored when absent), then the legacy CONFIG_FILE and
// SECRET_FILE key/value files, then built-in defaults.
func New(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile) // ignore error if .env not found

	l := &loader{legacy: map[string]string{}}
	for _, path := range []string{
		l.str("CONFIG_FILE", homeFile(".telegram_bot_config")),
		l.str("SECRET_FILE", homeFile(".telegram_bot_secret")),
	} {
		values, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, ok := l.legacy[k]; !ok {
				l.legacy[k] = v
			}
		}
	}

	dataDir := defaultDataDir()
	cfg := &Config{
		botToken:           l.str("TELEGRAM_BOT_TOKEN", ""),
		recipientID:        l.str("TELEGRAM_CHAT_ID", ""),
		serverID:           l.str("SERVER_ID", ""),
		apiURL:             strings.TrimRight(l.str("TELEGRAM_API_URL", defaultAPIURL), "/"),
		services:           ParseServiceList(l.str("SERVICES_TO_MONITOR", defaultServices())),
		diskThreshold:      l.percent("DISK_THRESHOLD", 10),
		cpuThreshold:       l.percent("CPU_THRESHOLD", 90),
		memThreshold:       l.percent("MEM_THRESHOLD", 92),
		diskPath:           l.str("DISK_PATH", defaultDiskPath()),
		monitorInterval:    l.duration("MONITOR_INTERVAL", 60*time.Second),
		pollIdleDelay:      l.duration("POLL_IDLE_DELAY", 5*time.Second),
		pollTimeout:        l.duration("POLL_TIMEOUT", 20*time.Second),
		serviceTimeout:     l.duration("SERVICE_TIMEOUT", 30*time.Second),
		serviceBackend:     strings.ToLower(l.str("SERVICE_BACKEND", BackendNative)),
		allowRun:           l.boolean("ALLOW_RUN", false),
		runTimeout:         l.duration("RUN_TIMEOUT", 30*time.Second),
		runMaxOutput:       l.integer("RUN_MAX_OUTPUT", 16*1024),
		runAsUser:          l.str("RUN_AS_USER", ""),
		notifyRate:         l.float("NOTIFY_RATE", 1),
		notifyBurst:        l.integer("NOTIFY_BURST", 5),
		stateFile:          l.str("STATE_FILE", filepath.Join(dataDir, "monitoring_status")),
		logFile:            l.str("LOG_FILE", filepath.Join(dataDir, "hostwatch.log")),
		logLevel:           l.str("LOG_LEVEL", "info"),
		serviceName:        l.str("SERVICE_NAME", "HostWatch"),
		serviceDisplayName: l.str("SERVICE_DISPLAY_NAME", "HostWatch Monitoring Agent"),
		serviceDescription: l.str("SERVICE_DESCRIPTION", "Monitors local services and resources and reports to a Telegram chat"),
	}
	if cfg.serverID == "" {
		cfg.serverID = idcommands.GenerateServerID()
	}

	if cfg.botToken == "" {
		l.fail(fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is not set", ErrMissingCredential))
	}
	if cfg.recipientID == "" {
		l.fail(fmt.Errorf("%w: TELEGRAM_CHAT_ID is not set", ErrMissingCredential))
	}
	if cfg.serverID == "" {
		l.fail(fmt.Errorf("%w: SERVER_ID is not set and could not be derived", ErrMissingCredential))
	}
	if len(cfg.services) == 0 {
		l.fail(fmt.Errorf("%w: SERVICES_TO_MONITOR is empty", ErrInvalidValue))
	}
	if cfg.serviceBackend != BackendNative && cfg.serviceBackend != BackendSystemd {
		l.fail(fmt.Errorf("%w: SERVICE_BACKEND %q", ErrInvalidValue, cfg.serviceBackend))
	}
	if cfg.monitorInterval <= 0 || cfg.pollIdleDelay <= 0 || cfg.serviceTimeout <= 0 || cfg.runTimeout <= 0 {
		l.fail(fmt.Errorf("%w: intervals and timeouts must be positive", ErrInvalidValue))
	}
	if cfg.runMaxOutput <= 0 || cfg.notifyRate <= 0 || cfg.notifyBurst <= 0 {
		l.fail(fmt.Errorf("%w: RUN_MAX_OUTPUT, NOTIFY_RATE and NOTIFY_BURST must be positive", ErrInvalidValue))
	}

	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}
	return cfg, nil
}

// ParseServiceList splits a comma-delimited list, trimming blanks and keeping order.
func ParseServiceList(raw string) []string {
	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

type loader struct {
	legacy map[string]string
	errs   []error
}

func (l *loader) fail(err error) {
	l.errs = append(l.errs, err)
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(l.legacy[key]); v != "" {
		return v
	}
	return def
}

func (l *loader) float(key string, def float64) float64 {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.fail(fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw))
		return def
	}
	return v
}

func (l *loader) percent(key string, def float64) float64 {
	v := l.float(key, def)
	if v < 0 || v > 100 {
		l.fail(fmt.Errorf("%w: %s must be within 0-100", ErrInvalidValue, key))
		return def
	}
	return v
}

func (l *loader) integer(key string, def int) int {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw))
		return def
	}
	return v
}

func (l *loader) boolean(key string, def bool) bool {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		l.fail(fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw))
		return def
	}
	return v
}

// duration accepts Go duration syntax or a plain number of seconds.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	if sec, err := strconv.Atoi(raw); err == nil {
		return time.Duration(sec) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw))
		return def
	}
	return d
}

// Getter methods (immutable from outside)

func (c *Config) ServerID() string { return c.serverID }

func (c *Config) RecipientID() string { return c.recipientID }

func (c *Config) BotToken() string { return c.botToken }

func (c *Config) APIURL() string { return c.apiURL }

// Services returns a copy of the monitored service names in configured order.
func (c *Config) Services() []string {
	return append([]string(nil), c.services...)
}

func (c *Config) DiskThreshold() float64 { return c.diskThreshold }

func (c *Config) CPUThreshold() float64 { return c.cpuThreshold }

func (c *Config) MemThreshold() float64 { return c.memThreshold }

func (c *Config) DiskPath() string { return c.diskPath }

func (c *Config) MonitorInterval() time.Duration { return c.monitorInterval }

func (c *Config) PollIdleDelay() time.Duration { return c.pollIdleDelay }

func (c *Config) PollTimeout() time.Duration { return c.pollTimeout }

func (c *Config) ServiceTimeout() time.Duration { return c.serviceTimeout }

func (c *Config) ServiceBackend() string { return c.serviceBackend }

func (c *Config) AllowRun() bool { return c.allowRun }

func (c *Config) RunTimeout() time.Duration { return c.runTimeout }

func (c *Config) RunMaxOutput() int { return c.runMaxOutput }

func (c *Config) RunAsUser() string { return c.runAsUser }

func (c *Config) NotifyRate() float64 { return c.notifyRate }

func (c *Config) NotifyBurst() int { return c.notifyBurst }

func (c *Config) StateFile() string { return c.stateFile }

func (c *Config) LogFile() string { return c.logFile }

func (c *Config) LogLevel() string { return c.logLevel }

func (c *Config) ServiceName() string { return c.serviceName }

func (c *Config) ServiceDisplayName() string { return c.serviceDisplayName }

func (c *Config) ServiceDescription() string { return c.serviceDescription }
