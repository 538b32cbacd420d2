package cassette

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magneto-serge/magneto/config"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const tempFilePattern = ".magneto-*.tmp"

// FileStore keeps each cassette in its own file in one directory. The file name is the cassette name
// plus the extension of the configured format; a cassette written in the other format is still found
// by Load.
type FileStore struct {
	dir     string
	format  config.CassetteFormat
	loggers ldlog.Loggers
}

// NewFileStore creates a FileStore, creating the directory if necessary.
func NewFileStore(dir string, format config.CassetteFormat, loggers ldlog.Loggers) (*FileStore, error) {
	if format == "" {
		format = config.FormatJSON
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errCannotCreateDir(dir, err)
	}
	loggers.SetPrefix("[cassette]")
	return &FileStore{dir: dir, format: format, loggers: loggers}, nil
}

// Dir returns the cassette directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) formats() []config.CassetteFormat {
	if s.format == config.FormatJSONGzip {
		return []config.CassetteFormat{config.FormatJSONGzip, config.FormatJSON}
	}
	return []config.CassetteFormat{config.FormatJSON, config.FormatJSONGzip}
}

func (s *FileStore) pathFor(name string, format config.CassetteFormat) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return securejoin.SecureJoin(s.dir, name+format.Extension())
}

// FilePath returns the path of the file that Load would read for this cassette, or the path that Save
// would write if the cassette does not exist yet.
func (s *FileStore) FilePath(name string) (string, error) {
	path, _, err := s.find(name)
	if err == nil {
		return path, nil
	}
	if IsNotFound(err) {
		return s.pathFor(name, s.format)
	}
	return "", err
}

func (s *FileStore) find(name string) (string, config.CassetteFormat, error) {
	for _, f := range s.formats() {
		path, err := s.pathFor(name, f)
		if err != nil {
			return "", "", err
		}
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, f, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", "", IOError{Op: "stat", Name: name, Err: err}
		}
	}
	return "", "", NotFoundError{Name: name}
}

// Load implements Store.
func (s *FileStore) Load(name string) (*Cassette, error) {
	path, _, err := s.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is confined to the cassette directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFoundError{Name: name}
		}
		return nil, IOError{Op: "read", Name: name, Err: err}
	}
	return decodeNamed(name, data)
}

// Save implements Store. The data is written to a temporary file in the same directory, which is then
// renamed over the destination.
func (s *FileStore) Save(c *Cassette) error {
	path, err := s.pathFor(c.Name, s.format)
	if err != nil {
		return err
	}
	data, err := EncodeFormat(c, s.format)
	if err != nil {
		return IOError{Op: "encode", Name: c.Name, Err: err}
	}
	if err := writeFileAtomically(s.dir, path, data); err != nil {
		return IOError{Op: "write", Name: c.Name, Err: err}
	}
	s.loggers.Infof(logMsgSaved, c.Name, len(c.Interactions), path)

	for _, f := range s.formats() {
		if f == s.format {
			continue
		}
		if stale, err := s.pathFor(c.Name, f); err == nil {
			if err := os.Remove(stale); err == nil {
				s.loggers.Infof(logMsgRemovedStale, stale, path)
			}
		}
	}
	return nil
}

func writeFileAtomically(dir, path string, data []byte) error {
	f, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return err
	}
	tempPath := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempPath, 0o644); err != nil { //nolint:gosec
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Exists implements Store.
func (s *FileStore) Exists(name string) (bool, error) {
	_, _, err := s.find(name)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// List implements Store.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, IOError{Op: "list", Err: err}
	}
	seen := make(map[string]struct{})
	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		var name string
		switch {
		case strings.HasSuffix(e.Name(), config.FormatJSONGzip.Extension()):
			name = strings.TrimSuffix(e.Name(), config.FormatJSONGzip.Extension())
		case strings.HasSuffix(e.Name(), config.FormatJSON.Extension()):
			name = strings.TrimSuffix(e.Name(), config.FormatJSON.Extension())
		default:
			continue
		}
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Store. Files in both formats are removed.
func (s *FileStore) Delete(name string) error {
	found := false
	for _, f := range s.formats() {
		path, err := s.pathFor(name, f)
		if err != nil {
			return err
		}
		err = os.Remove(path)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return IOError{Op: "delete", Name: name, Err: err}
		}
	}
	if !found {
		return NotFoundError{Name: name}
	}
	return nil
}

// Describe implements Store.
func (s *FileStore) Describe() string {
	abs, err := filepath.Abs(s.dir)
	if err != nil {
		abs = s.dir
	}
	return "directory " + abs
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
