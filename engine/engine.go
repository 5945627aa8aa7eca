package engine

import (
	"fmt"

	"wfscan/config"
	"wfscan/hyperscan"
	"wfscan/logging"
	"wfscan/matching"
	"wfscan/pattern"
	"wfscan/signatures"

	"github.com/rs/zerolog"
)

// MatcherFactory builds Matchers for signature sets according to a matcher configuration.
type MatcherFactory interface {
	NewMatcher(set *signatures.SignatureSet) (*matching.Matcher, error)
	LoadMatcher(loader signatures.Loader, path string) (*matching.Matcher, error)
	Close() error
}

type matcherFactoryImpl struct {
	logger    zerolog.Logger
	cfg       config.Matcher
	compiler  pattern.Compiler
	prefilter pattern.MultiScannerFactory
	diag      matching.DiagnosticSink
	fileSink  logging.FileDiagnosticSink
}

// NewMatcherFactory creates a MatcherFactory. The log file system is only used when cfg.DiagnosticsLogDir is set.
func NewMatcherFactory(logger zerolog.Logger, cfg config.Matcher, lfs logging.LogFileSystem) (f MatcherFactory, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}

	impl := &matcherFactoryImpl{logger: logger, cfg: cfg}

	switch cfg.PatternEngine {
	case config.EnginePcre:
		timeout := cfg.MatchTimeout
		if timeout == 0 {
			timeout = pattern.DefaultMatchTimeout
		}
		impl.compiler = pattern.NewPcreCompiler(timeout)
	case config.EngineRe2:
		impl.compiler = pattern.NewRe2Compiler()
	}

	switch cfg.Prefilter {
	case config.PrefilterLiteral:
		impl.prefilter = pattern.NewLiteralScannerFactory()
	case config.PrefilterHyperscan:
		var cache hyperscan.DbCache
		if cfg.HyperscanCacheDir != "" {
			cache = hyperscan.NewDbCache(hyperscan.NewCacheFileSystem(cfg.HyperscanCacheDir))
		}
		impl.prefilter = hyperscan.NewMultiScannerFactory(cache)
	}

	impl.diag = matching.NewLoggerDiagnosticSink(logger)
	if cfg.DiagnosticsLogDir != "" {
		impl.fileSink, err = logging.NewFileDiagnosticSink(lfs, cfg.DiagnosticsLogDir, logger)
		if err != nil {
			return
		}
		impl.diag = teeSink{impl.diag, impl.fileSink}
	}

	logger.Info().
		Str("engine", cfg.PatternEngine).
		Str("prefilter", cfg.Prefilter).
		Int("window", cfg.Window).
		Bool("eagerCompile", cfg.EagerCompile).
		Msg("Matcher factory configured")

	f = impl
	return
}

func (f *matcherFactoryImpl) NewMatcher(set *signatures.SignatureSet) (*matching.Matcher, error) {
	return matching.NewMatcher(f.logger, set, matching.Options{
		Compiler:     f.compiler,
		Prefilter:    f.prefilter,
		Diagnostics:  f.diag,
		Window:       f.cfg.Window,
		EagerCompile: f.cfg.EagerCompile,
	})
}

func (f *matcherFactoryImpl) LoadMatcher(loader signatures.Loader, path string) (m *matching.Matcher, err error) {
	set, err := loader.Load(path)
	if err != nil {
		err = fmt.Errorf("failed to load signatures from %s: %w", path, err)
		return
	}

	f.logger.Info().Str("path", path).Int("signatures", len(set.Signatures)).Int("commonStrings", len(set.CommonStrings)).Msg("Loaded signature set")

	return f.NewMatcher(set)
}

// Close releases the diagnostics log file, if any. Matchers already built stay usable.
func (f *matcherFactoryImpl) Close() error {
	if f.fileSink == nil {
		return nil
	}
	return f.fileSink.Close()
}

type teeSink []matching.DiagnosticSink

func (t teeSink) CompilationFailed(err *matching.CompilationError) {
	for _, s := range t {
		s.CompilationFailed(err)
	}
}
