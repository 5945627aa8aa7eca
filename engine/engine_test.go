package engine

import (
	"errors"
	"os"
	"strings"
	"testing"

	"wfscan/config"
	"wfscan/logging"
	"wfscan/signatures"
	"wfscan/testutils"

	"github.com/stretchr/testify/assert"
)

var testSignatureFile = `
commonStrings:
  - id: 0
    pattern: eval\(
  - id: 1
    pattern: base64_decode
  - id: 2
    pattern: FilesMan
signatures:
  - id: 100
    name: eval-base64
    rule: eval\(base64_decode\(
    commonStrings: [0, 1]
  - id: 101
    name: filesman
    rule: FilesMan\s*=
    commonStrings: [2]
  - id: 102
    name: shell-exec
    rule: shell_exec\(
`

type mockLoaderFileSystem struct {
	files map[string]string
}

func (fs *mockLoaderFileSystem) ReadFile(name string) ([]byte, error) {
	if s, ok := fs.files[name]; ok {
		return []byte(s), nil
	}
	return nil, os.ErrNotExist
}

type mockLogFile struct {
	content strings.Builder
}

func (f *mockLogFile) Append(content []byte) error {
	f.content.Write(content)
	return nil
}

func (f *mockLogFile) Close() error { return nil }

type mockLogFileSystem struct {
	files map[string]*mockLogFile
}

func (fs *mockLogFileSystem) MkDir(name string) error { return nil }

func (fs *mockLogFileSystem) Open(name string) (logging.LogFile, error) {
	f := &mockLogFile{}
	fs.files[name] = f
	return f, nil
}

func scan(t *testing.T, cfg config.Matcher, chunks ...string) []signatures.SignatureID {
	f, err := NewMatcherFactory(testutils.NewTestLogger(t), cfg, nil)
	if err != nil {
		t.Fatalf("Got unexpected error: %s", err)
	}
	defer f.Close()

	loader := signatures.NewLoader(&mockLoaderFileSystem{files: map[string]string{"sigs.yaml": testSignatureFile}})
	m, err := f.LoadMatcher(loader, "sigs.yaml")
	if err != nil {
		t.Fatalf("Got unexpected error: %s", err)
	}
	defer m.Close()

	ctx := m.NewContext()
	for _, c := range chunks {
		ctx.ProcessChunk([]byte(c))
	}
	return ctx.Matches()
}

func TestEngineCombinations(t *testing.T) {
	tests := []struct {
		engine    string
		prefilter string
	}{
		{config.EnginePcre, config.PrefilterPattern},
		{config.EnginePcre, config.PrefilterLiteral},
		{config.EnginePcre, config.PrefilterHyperscan},
		{config.EngineRe2, config.PrefilterPattern},
		{config.EngineRe2, config.PrefilterLiteral},
		{config.EngineRe2, config.PrefilterHyperscan},
	}

	for _, tt := range tests {
		t.Run(tt.engine+"/"+tt.prefilter, func(t *testing.T) {
			// Arrange
			cfg := config.Default().Matcher
			cfg.PatternEngine = tt.engine
			cfg.Prefilter = tt.prefilter

			// Act
			matches := scan(t, cfg,
				"<?php $FilesMan = 'x';",
				"eval(base64_decode($_POST['z']));",
			)

			// Assert
			assert.Equal(t, []signatures.SignatureID{101, 100}, matches)
		})
	}
}

func TestEnginePrefiltersAgreeOnNonASCII(t *testing.T) {
	set := func() *signatures.SignatureSet {
		set, err := signatures.NewSignatureSet(
			[]*signatures.CommonString{
				{ID: 0, Pattern: "café"},
				{ID: 1, Pattern: "[à-ÿ]z"},
				{ID: 2, Pattern: "Größe"},
			},
			[]*signatures.Signature{
				{ID: 1, Rule: "café.*crème", CommonStrings: []signatures.CommonStringID{0}},
				{ID: 2, Rule: "[à-ÿ]z[0-9]", CommonStrings: []signatures.CommonStringID{1}},
				{ID: 3, Rule: "Größe", CommonStrings: []signatures.CommonStringID{2}},
			},
		)
		if err != nil {
			t.Fatalf("Got unexpected error: %s", err)
		}
		return set
	}
	chunks := []string{"un café crème", "GROSSE größe", "\xffèz7 ÿz"}

	results := make(map[string][]signatures.SignatureID)
	for _, prefilter := range []string{config.PrefilterPattern, config.PrefilterLiteral, config.PrefilterHyperscan} {
		// Arrange
		cfg := config.Default().Matcher
		cfg.Prefilter = prefilter
		f, err := NewMatcherFactory(testutils.NewTestLogger(t), cfg, nil)
		if err != nil {
			t.Fatalf("Got unexpected error: %s", err)
		}
		m, err := f.NewMatcher(set())
		if err != nil {
			t.Fatalf("Got unexpected error: %s", err)
		}

		// Act
		ctx := m.NewContext()
		for _, c := range chunks {
			ctx.ProcessChunk([]byte(c))
		}
		results[prefilter] = ctx.Matches()
		m.Close()
		f.Close()
	}

	// Assert
	expected := []signatures.SignatureID{1, 2}
	for prefilter, matches := range results {
		assert.Equal(t, expected, matches, "prefilter %s", prefilter)
	}
}

func TestEngineWindow(t *testing.T) {
	// Arrange
	cfg := config.Default().Matcher
	cfg.Window = 32

	// Act
	withWindow := scan(t, cfg, "x = eval(", "base64_decode(y)")
	cfg.Window = 0
	withoutWindow := scan(t, cfg, "x = eval(", "base64_decode(y)")

	// Assert
	assert.Equal(t, []signatures.SignatureID{100}, withWindow)
	assert.Empty(t, withoutWindow)
}

func TestEngineHyperscanCache(t *testing.T) {
	// Arrange
	cfg := config.Default().Matcher
	cfg.Prefilter = config.PrefilterHyperscan
	cfg.HyperscanCacheDir = t.TempDir()

	// Act
	first := scan(t, cfg, "shell_exec($cmd)")
	entries, err := os.ReadDir(cfg.HyperscanCacheDir)
	second := scan(t, cfg, "shell_exec($cmd)")

	// Assert
	assert.Nil(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, first, second)
}

func TestEngineUnsupported(t *testing.T) {
	// Arrange
	cfg := config.Default().Matcher
	cfg.PatternEngine = "hyperscan"

	// Act
	_, err := NewMatcherFactory(testutils.NewTestLogger(t), cfg, nil)

	// Assert
	assert.True(t, errors.Is(err, config.ErrUnsupportedEngine))
}

func TestEngineDiagnosticsLog(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	cfg := config.Default().Matcher
	cfg.DiagnosticsLogDir = "/var/log/wfscan"
	lfs := &mockLogFileSystem{files: make(map[string]*mockLogFile)}
	f, err := NewMatcherFactory(testutils.NewTestLogger(t), cfg, lfs)
	assert.Nil(err)

	set, _ := signatures.NewSignatureSet(nil, []*signatures.Signature{{ID: 5, Rule: "broken("}})

	// Act
	m, err := f.NewMatcher(set)
	assert.Nil(err)
	m.Close()
	f.Close()

	// Assert
	assert.Len(lfs.files, 1)
	for _, lf := range lfs.files {
		assert.Contains(lf.content.String(), `"signatureId":"5"`)
		assert.Contains(lf.content.String(), `"pattern":"broken("`)
	}
}

func TestEngineMatcherOutlivesFactoryClose(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	cfg := config.Default().Matcher
	cfg.DiagnosticsLogDir = "/var/log/wfscan"
	lfs := &mockLogFileSystem{files: make(map[string]*mockLogFile)}
	f, err := NewMatcherFactory(testutils.NewTestLogger(t), cfg, lfs)
	assert.Nil(err)

	set, _ := signatures.NewSignatureSet(
		[]*signatures.CommonString{{ID: 1, Pattern: "abc"}},
		[]*signatures.Signature{
			{ID: 7, Rule: "abc(", CommonStrings: []signatures.CommonStringID{1}},
			{ID: 8, Rule: "abc", CommonStrings: []signatures.CommonStringID{1}},
		},
	)
	m, err := f.NewMatcher(set)
	assert.Nil(err)
	defer m.Close()

	// Act
	assert.Nil(f.Close())
	ctx := m.NewContext()
	ctx.ProcessChunk([]byte("abc"))

	// Assert
	assert.Equal([]signatures.SignatureID{8}, ctx.Matches())
	for _, lf := range lfs.files {
		assert.Empty(lf.content.String())
	}
}

func TestEngineLoadMissingFile(t *testing.T) {
	// Arrange
	f, _ := NewMatcherFactory(testutils.NewTestLogger(t), config.Default().Matcher, nil)
	defer f.Close()
	loader := signatures.NewLoader(&mockLoaderFileSystem{})

	// Act
	_, err := f.LoadMatcher(loader, "missing.yaml")

	// Assert
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
