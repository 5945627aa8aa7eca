package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pattern engines for full signature patterns.
const (
	EnginePcre = "pcre"
	EngineRe2  = "re2"
)

// Prefilter kinds for common strings.
const (
	PrefilterPattern   = "pattern"
	PrefilterLiteral   = "literal"
	PrefilterHyperscan = "hyperscan"
)

// ErrUnsupportedEngine is returned for an unknown pattern engine or prefilter name.
var ErrUnsupportedEngine = errors.New("unsupported engine")

// Main is the top level configuration.
type Main struct {
	Matcher Matcher `yaml:"matcher"`
}

// Matcher configures how signature sets are compiled and scanned.
type Matcher struct {
	PatternEngine     string        `yaml:"patternEngine"`
	MatchTimeout      time.Duration `yaml:"matchTimeout"`
	Prefilter         string        `yaml:"prefilter"`
	HyperscanCacheDir string        `yaml:"hyperscanCacheDir"`
	Window            int           `yaml:"window"`
	EagerCompile      bool          `yaml:"eagerCompile"`
	DiagnosticsLogDir string        `yaml:"diagnosticsLogDir"`
}

// Default returns the configuration used when no file is given.
func Default() Main {
	return Main{
		Matcher: Matcher{
			PatternEngine: EnginePcre,
			MatchTimeout:  time.Second,
			Prefilter:     PrefilterPattern,
		},
	}
}

// Validate checks that the names and limits in the configuration are usable.
func (m *Matcher) Validate() (err error) {
	switch m.PatternEngine {
	case EnginePcre, EngineRe2:
	default:
		err = fmt.Errorf("pattern engine %q: %w", m.PatternEngine, ErrUnsupportedEngine)
		return
	}

	switch m.Prefilter {
	case PrefilterPattern, PrefilterLiteral, PrefilterHyperscan:
	default:
		err = fmt.Errorf("prefilter %q: %w", m.Prefilter, ErrUnsupportedEngine)
		return
	}

	if m.MatchTimeout < 0 {
		err = fmt.Errorf("matchTimeout must not be negative, got %v", m.MatchTimeout)
		return
	}

	if m.Window < 0 {
		err = fmt.Errorf("window must not be negative, got %d", m.Window)
		return
	}

	if m.HyperscanCacheDir != "" && m.Prefilter != PrefilterHyperscan {
		err = fmt.Errorf("hyperscanCacheDir is set but prefilter is %q", m.Prefilter)
		return
	}

	return
}

// ConfigFileSystem is the interface to the file system the config is read from.
type ConfigFileSystem interface {
	ReadFile(name string) ([]byte, error)
}

type configFileSystemImpl struct{}

// NewConfigFileSystem creates a ConfigFileSystem backed by the real file system.
func NewConfigFileSystem() ConfigFileSystem {
	return &configFileSystemImpl{}
}

func (fs *configFileSystemImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Load reads a YAML config file. Fields missing from the file keep their Default values.
func Load(fs ConfigFileSystem, path string) (c Main, err error) {
	c = Default()

	bb, err := fs.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file %s: %w", path, err)
		return
	}

	if err = yaml.Unmarshal(bb, &c); err != nil {
		err = fmt.Errorf("failed to parse config file %s: %w", path, err)
		return
	}

	if err = c.Matcher.Validate(); err != nil {
		err = fmt.Errorf("invalid config file %s: %w", path, err)
		return
	}

	return
}
