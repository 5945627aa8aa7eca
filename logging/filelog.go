package logging

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"sync"

	"wfscan/matching"

	"github.com/rs/zerolog"
)

// FileName is the diagnostics log file name.
const FileName = "wfscan_diagnostics.log"

// FileDiagnosticSink is a diagnostic sink that appends one JSON line per compilation failure to a log file.
type FileDiagnosticSink interface {
	matching.DiagnosticSink
	Close() error
}

type fileDiagnosticSink struct {
	fileSystem   LogFileSystem
	file         LogFile
	logger       zerolog.Logger
	writelogline chan []byte
	writeDone    chan bool

	// mu guards closed and the channels, as matchers keep reporting lazy compile failures after Close.
	mu     sync.Mutex
	closed bool
}

// NewFileDiagnosticSink creates a diagnostic sink that writes to FileName in dir.
func NewFileDiagnosticSink(fileSystem LogFileSystem, dir string, logger zerolog.Logger) (FileDiagnosticSink, error) {
	s := &fileDiagnosticSink{fileSystem: fileSystem, logger: logger}

	err := fileSystem.MkDir(dir)
	if err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("Failed to create the directory while initializing")
		return nil, err
	}

	name := filepath.Join(dir, FileName)
	s.file, err = fileSystem.Open(name)
	if err != nil {
		logger.Error().Err(err).Str("file", name).Msg("Failed to open the file at initiation")
		return nil, err
	}

	s.writelogline = make(chan []byte)
	s.writeDone = make(chan bool)
	go func() {
		for v := range s.writelogline {
			if err := s.file.Append(append(v, '\n')); err != nil {
				s.logger.Error().Err(err).Msg("Failed to append to the diagnostics log")
			}
			s.writeDone <- true
		}
	}()

	return s, nil
}

func (s *fileDiagnosticSink) CompilationFailed(cerr *matching.CompilationError) {
	p := diagnosticLogEntryProperty{
		Pattern: cerr.Pattern,
		Message: cerr.Err.Error(),
	}
	if cerr.CommonString {
		p.CommonStringID = strconv.Itoa(int(cerr.CommonStringID))
	} else {
		p.SignatureID = strconv.Itoa(int(cerr.SignatureID))
	}

	lg := &diagnosticLogEntry{
		OperationName: "PatternCompilation",
		Category:      "SignatureDiagnosticsLog",
		Properties:    p,
	}

	bb, err := json.Marshal(lg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error while marshaling JSON diagnostics log")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn().RawJSON("entry", bb).Msg("Diagnostics log is closed, dropping entry")
		return
	}

	s.writelogline <- bb
	<-s.writeDone
}

// Close stops the writer and closes the log file. Failures reported afterwards are only logged to Zerolog.
func (s *fileDiagnosticSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.closed = true
	close(s.writelogline)
	return s.file.Close()
}
