package cassette

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/magneto-serge/magneto/config"

	"github.com/go-redis/redis/v8"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const redisScanCount = 100

func redisCassetteKey(prefix, name string) string {
	return fmt.Sprintf("%s:cassette:%s", prefix, name)
}

// RedisStore keeps cassettes as string values in Redis, so that several proxies can share them.
// A single SET is atomic, so Save needs no temporary key.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	format  config.CassetteFormat
	url     string
	loggers ldlog.Loggers
}

// NewRedisStore creates a RedisStore and checks that the server is reachable.
func NewRedisStore(url, prefix string, format config.CassetteFormat, loggers ldlog.Loggers) (*RedisStore, error) {
	opts := redis.UniversalOptions{}

	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DB = parsed.DB
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	opts.Password = parsed.Password
	opts.TLSConfig = parsed.TLSConfig

	if format == "" {
		format = config.FormatJSON
	}
	store := &RedisStore{
		client:  redis.NewUniversalClient(&opts),
		prefix:  prefix,
		format:  format,
		url:     parsed.Addr,
		loggers: loggers,
	}
	if err := store.client.Ping(context.Background()).Err(); err != nil {
		_ = store.client.Close()
		return nil, err
	}
	store.loggers.SetPrefix("[cassette]")
	return store, nil
}

// Load implements Store.
func (r *RedisStore) Load(name string) (*Cassette, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := r.client.Get(context.Background(), redisCassetteKey(r.prefix, name)).Bytes()
	if err == redis.Nil {
		return nil, NotFoundError{Name: name}
	}
	if err != nil {
		return nil, IOError{Op: "read", Name: name, Err: err}
	}
	return decodeNamed(name, data)
}

// Save implements Store.
func (r *RedisStore) Save(c *Cassette) error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	data, err := EncodeFormat(c, r.format)
	if err != nil {
		return IOError{Op: "encode", Name: c.Name, Err: err}
	}
	key := redisCassetteKey(r.prefix, c.Name)
	if err := r.client.Set(context.Background(), key, data, 0).Err(); err != nil {
		return IOError{Op: "write", Name: c.Name, Err: err}
	}
	r.loggers.Infof(logMsgSaved, c.Name, len(c.Interactions), key)
	return nil
}

// Exists implements Store.
func (r *RedisStore) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	n, err := r.client.Exists(context.Background(), redisCassetteKey(r.prefix, name)).Result()
	if err != nil {
		return false, IOError{Op: "exists", Name: name, Err: err}
	}
	return n > 0, nil
}

// List implements Store.
func (r *RedisStore) List() ([]string, error) {
	ctx := context.Background()
	keyPrefix := redisCassetteKey(r.prefix, "")
	names := []string{}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", redisScanCount).Result()
		if err != nil {
			return nil, IOError{Op: "list", Err: err}
		}
		for _, k := range keys {
			names = append(names, strings.TrimPrefix(k, keyPrefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Store.
func (r *RedisStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	n, err := r.client.Del(context.Background(), redisCassetteKey(r.prefix, name)).Result()
	if err != nil {
		return IOError{Op: "delete", Name: name, Err: err}
	}
	if n == 0 {
		return NotFoundError{Name: name}
	}
	return nil
}

// Describe implements Store.
func (r *RedisStore) Describe() string {
	return fmt.Sprintf("Redis at %s (prefix %q)", r.url, r.prefix)
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
