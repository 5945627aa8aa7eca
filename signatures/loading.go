package signatures

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned when a signature file has an extension the loader can't decode.
var ErrUnknownFormat = errors.New("unknown signature file format")

// Loader obtains a SignatureSet from a signature document.
type Loader interface {
	Load(path string) (set *SignatureSet, err error)
}

// LoaderFileSystem is the file system access the Loader needs.
type LoaderFileSystem interface {
	ReadFile(name string) ([]byte, error)
}

// YAML and JSON decoding requires exporting of struct fields
type commonStringDoc struct {
	ID      CommonStringID `json:"id" yaml:"id"`
	Pattern string         `json:"pattern" yaml:"pattern"`
}

type signatureDoc struct {
	ID            SignatureID      `json:"id" yaml:"id"`
	Name          string           `json:"name" yaml:"name"`
	Description   string           `json:"description" yaml:"description"`
	Rule          string           `json:"rule" yaml:"rule"`
	CommonStrings []CommonStringID `json:"commonStrings" yaml:"commonStrings"`
}

type signatureFileDoc struct {
	CommonStrings []commonStringDoc `json:"commonStrings" yaml:"commonStrings"`
	Signatures    []signatureDoc    `json:"signatures" yaml:"signatures"`
}

type loaderImpl struct {
	fs LoaderFileSystem
}

// NewLoader creates a Loader reading JSON (.json) or YAML (.yaml, .yml) signature documents through the given file system.
func NewLoader(fs LoaderFileSystem) Loader {
	return &loaderImpl{fs: fs}
}

func (l *loaderImpl) Load(path string) (set *SignatureSet, err error) {
	bb, err := l.fs.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read signature file %s: %w", path, err)
		return
	}

	var doc signatureFileDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		d := json.NewDecoder(bytes.NewReader(bb))
		d.DisallowUnknownFields()
		err = d.Decode(&doc)
	case ".yaml", ".yml":
		d := yaml.NewDecoder(bytes.NewReader(bb))
		d.KnownFields(true)
		err = d.Decode(&doc)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, path)
		return
	}
	if err != nil {
		err = fmt.Errorf("failed to decode signature file %s: %w", path, err)
		return
	}

	set, err = doc.toSignatureSet()
	if err != nil {
		err = fmt.Errorf("signature file %s: %w", path, err)
	}
	return
}

func (d *signatureFileDoc) toSignatureSet() (*SignatureSet, error) {
	cc := make([]*CommonString, 0, len(d.CommonStrings))
	for _, c := range d.CommonStrings {
		cc = append(cc, &CommonString{ID: c.ID, Pattern: c.Pattern})
	}

	ss := make([]*Signature, 0, len(d.Signatures))
	for _, s := range d.Signatures {
		ss = append(ss, &Signature{
			ID:            s.ID,
			Name:          s.Name,
			Description:   s.Description,
			Rule:          s.Rule,
			CommonStrings: s.CommonStrings,
		})
	}

	return NewSignatureSet(cc, ss)
}

type loaderFileSystemImpl struct{}

// NewLoaderFileSystem creates a LoaderFileSystem that uses the real file system.
func NewLoaderFileSystem() LoaderFileSystem {
	return &loaderFileSystemImpl{}
}

func (fs *loaderFileSystemImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}
