package cassette

import (
	"strings"

	"github.com/magneto-serge/magneto/config"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// Store is a place where cassettes are persisted by name.
//
// Implementations must make Save atomic: a concurrent or subsequent Load sees either the previous
// cassette or the new one, never a partial write.
type Store interface {
	// Load reads and decodes a cassette. It returns a NotFoundError if there is no such cassette, or a
	// ParseError if it exists but is not valid.
	Load(name string) (*Cassette, error)
	// Save writes the cassette under its Name, replacing any previous version.
	Save(c *Cassette) error
	// Exists returns true if a cassette with this name is present.
	Exists(name string) (bool, error)
	// List returns the names of all cassettes, sorted.
	List() ([]string, error)
	// Delete removes a cassette. It returns a NotFoundError if there is no such cassette.
	Delete(name string) error
	// Describe returns a human-readable description of where cassettes are kept, for logging.
	Describe() string
	// Close releases any resources held by the store.
	Close() error
}

// NewStore creates the Store described by the configuration: a Redis store if Redis.URL is set,
// otherwise a FileStore rooted at Main.CassetteDir.
func NewStore(c config.Config, loggers ldlog.Loggers) (Store, error) {
	if c.Redis.URL.IsDefined() {
		prefix := c.Redis.Prefix
		if prefix == "" {
			prefix = config.DefaultRedisPrefix
		}
		return NewRedisStore(c.Redis.URL.Get().String(), prefix, c.Main.Format.GetOrElse(config.FormatJSON), loggers)
	}
	dir := c.Main.CassetteDir
	if dir == "" {
		dir = config.DefaultCassetteDir
	}
	return NewFileStore(dir, c.Main.Format.GetOrElse(config.FormatJSON), loggers)
}

// ValidateName checks that a cassette name can be used as a file name in a single directory.
func ValidateName(name string) error {
	if name == "" {
		return errEmptyName
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") || strings.ContainsRune(name, 0) {
		return errInvalidName(name)
	}
	return nil
}

func decodeNamed(name string, data []byte) (*Cassette, error) {
	c, err := Decode(data)
	if err != nil {
		return nil, ParseError{Name: name, Err: err}
	}
	if c.Name == "" {
		c.Name = name
	}
	return c, nil
}
