// Package lifecycle implements the parts of hashserver that surround the
// storage engine rather than belong to it: argument/environment
// resolution, port selection, the status-file handshake, and the
// inactivity-timeout shutdown monitor.
package lifecycle

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/herr"
	"github.com/sjdv1982/hashserver/internal/layout"
)

// Config is the fully resolved, validated configuration for one server
// run, independent of whether it came from argv or the environment.
type Config struct {
	Directory      string
	Writable       bool
	ExtraDirs      []string
	Layout         layout.Kind
	LockTimeout    time.Duration
	Algorithm      digest.Algorithm
	Port           int
	PortRangeStart int
	PortRangeEnd   int
	Host           string
	StatusFile     string
	Timeout        time.Duration
	LogLevel       string
	LogFormat      string
}

// Args is the raw, unvalidated form the CLI flags or environment
// populate, before defaulting/parsing.
type Args struct {
	Directory      string
	Writable       bool
	ExtraDirs      string // semicolon-separated
	Layout         string
	LockTimeoutSec int
	Encoding       string
	Port           int
	PortRangeStart int
	PortRangeEnd   int
	Host           string
	StatusFile     string
	TimeoutSec     int
	LogLevel       string
	LogFormat      string
}

const (
	defaultLockTimeout = 120 * time.Second
	defaultHost        = "127.0.0.1"
	defaultLayoutEnv   = "prefix"
)

// FromEnvironment reports whether HASHSERVER_DIRECTORY is set, in which
// case argv is ignored and config comes entirely from the environment.
func FromEnvironment() bool {
	_, ok := os.LookupEnv("HASHSERVER_DIRECTORY")
	return ok
}

// ResolveEnv builds Args from the HASHSERVER_* environment variables.
func ResolveEnv() Args {
	a := Args{
		Directory: os.Getenv("HASHSERVER_DIRECTORY"),
		ExtraDirs: os.Getenv("HASHSERVER_EXTRA_DIRS"),
		Layout:    os.Getenv("HASHSERVER_LAYOUT"),
		Encoding:  os.Getenv("HASHSERVER_ENCODING"),
		LogLevel:  os.Getenv("HASHSERVER_LOG_LEVEL"),
	}
	if a.Layout == "" {
		a.Layout = defaultLayoutEnv
	}

	if v := os.Getenv("HASHSERVER_WRITABLE"); v != "" {
		a.Writable = parseBool(v)
	}
	if v := os.Getenv("HASHSERVER_LOCK_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			a.LockTimeoutSec = n
		}
	}
	return a
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Resolve validates a raw Args into a Config, applying defaults and
// enforcing the flag mutual-exclusion rules.
func Resolve(a Args) (Config, error) {
	if a.Directory == "" {
		return Config{}, herr.New(herr.KindConfigError, "directory is required", nil)
	}
	if fi, err := os.Stat(a.Directory); err != nil || !fi.IsDir() {
		return Config{}, herr.New(herr.KindConfigError, "not a directory: "+a.Directory, err)
	}

	layoutName := a.Layout
	if layoutName == "" {
		layoutName = defaultLayoutEnv
	}
	kind, err := layout.ParseKind(layoutName)
	if err != nil {
		return Config{}, herr.New(herr.KindConfigError, err.Error(), err)
	}

	if a.Writable && kind == layout.Vault {
		return Config{}, herr.New(herr.KindConfigError, "--writable is incompatible with vault layout", nil)
	}

	if a.Port != 0 && (a.PortRangeStart != 0 || a.PortRangeEnd != 0) {
		return Config{}, herr.New(herr.KindConfigError, "--port and --port-range are mutually exclusive", nil)
	}

	encoding := a.Encoding
	if encoding == "" {
		encoding = string(digest.SHA3256)
	}
	alg, err := digest.ParseAlgorithm(encoding)
	if err != nil {
		return Config{}, herr.New(herr.KindConfigError, err.Error(), err)
	}

	lockTimeout := defaultLockTimeout
	if a.LockTimeoutSec > 0 {
		lockTimeout = time.Duration(a.LockTimeoutSec) * time.Second
	}

	host := a.Host
	if host == "" {
		host = defaultHost
	}

	var extras []string
	for _, tok := range strings.Split(a.ExtraDirs, ";") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			extras = append(extras, tok)
		}
	}

	logLevel := a.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := a.LogFormat
	if logFormat == "" {
		logFormat = "text"
	}
	if logFormat != "text" && logFormat != "json" {
		return Config{}, herr.New(herr.KindConfigError, "invalid log format: "+logFormat, nil)
	}

	return Config{
		Directory:      a.Directory,
		Writable:       a.Writable,
		ExtraDirs:      extras,
		Layout:         kind,
		LockTimeout:    lockTimeout,
		Algorithm:      alg,
		Port:           a.Port,
		PortRangeStart: a.PortRangeStart,
		PortRangeEnd:   a.PortRangeEnd,
		Host:           host,
		StatusFile:     a.StatusFile,
		Timeout:        time.Duration(a.TimeoutSec) * time.Second,
		LogLevel:       logLevel,
		LogFormat:      logFormat,
	}, nil
}

// ResolveExtras converts Config.ExtraDirs into layout.Extra values,
// detecting each one's own flat/prefix marker.
func ResolveExtras(c Config) []layout.Extra {
	out := make([]layout.Extra, 0, len(c.ExtraDirs))
	for _, dir := range c.ExtraDirs {
		out = append(out, layout.DetectExtra(dir))
	}
	return out
}

func (c Config) String() string {
	return fmt.Sprintf("dir=%s layout=%s writable=%v host=%s", c.Directory, c.Layout, c.Writable, c.Host)
}
