package redisindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/TFMV/estateflow/logger"
)

// ErrNotIndexed is returned by Get for a key with no document
var ErrNotIndexed = errors.New("listing is not indexed")

// Config holds Redis index configuration
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Enabled  bool   `yaml:"enabled"`
}

// Index implements workflow.SearchIndex on Redis. Each listing is a hash
// under <prefix>listing:<entityKey>; a set per city holds the keys.
type Index struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// New connects and pings Redis. It returns nil, nil when the index is disabled.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.Nop()
	}
	if !cfg.Enabled {
		log.Info("Redis search index is disabled")
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(rdb, cfg.Prefix, log), nil
}

// NewWithClient wraps an existing client
func NewWithClient(rdb *goredis.Client, prefix string, log *logger.Logger) *Index {
	if prefix == "" {
		prefix = "estateflow:"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Index{
		log:    log.With("service", "RedisSearchIndex"),
		rdb:    rdb,
		prefix: prefix,
	}
}

func (x *Index) listingKey(entityKey string) string {
	return x.prefix + "listing:" + entityKey
}

func (x *Index) cityKey(city string) string {
	return x.prefix + "city:" + strings.ToLower(strings.TrimSpace(city))
}

// Publish replaces the listing's hash and moves it to its city set
func (x *Index) Publish(ctx context.Context, entityKey string, data map[string]interface{}) error {
	if x == nil || x.rdb == nil {
		return fmt.Errorf("redis search index not initialized")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", entityKey, err)
	}

	hkey := x.listingKey(entityKey)
	oldCity, err := x.rdb.HGet(ctx, hkey, "city").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("read %s: %w", entityKey, err)
	}
	city := stringField(data, "city")

	_, err = x.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, hkey)
		p.HSet(ctx, hkey,
			"kind", stringField(data, "kind"),
			"city", city,
			"displayName", stringField(data, "displayName"),
			"document", string(raw),
			"indexedAt", time.Now().UTC().Format(time.RFC3339),
		)
		if oldCity != "" && !strings.EqualFold(oldCity, city) {
			p.SRem(ctx, x.cityKey(oldCity), entityKey)
		}
		if city != "" {
			p.SAdd(ctx, x.cityKey(city), entityKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", entityKey, err)
	}
	x.log.Debug("Listing indexed", "entity_key", entityKey, "city", city)
	return nil
}

// Remove deletes the listing. Removing an absent key is not an error.
func (x *Index) Remove(ctx context.Context, entityKey string) error {
	if x == nil || x.rdb == nil {
		return fmt.Errorf("redis search index not initialized")
	}
	hkey := x.listingKey(entityKey)
	city, err := x.rdb.HGet(ctx, hkey, "city").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("read %s: %w", entityKey, err)
	}

	_, err = x.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, hkey)
		if city != "" {
			p.SRem(ctx, x.cityKey(city), entityKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", entityKey, err)
	}
	return nil
}

// Get returns the indexed document
func (x *Index) Get(ctx context.Context, entityKey string) (map[string]interface{}, error) {
	raw, err := x.rdb.HGet(ctx, x.listingKey(entityKey), "document").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entityKey, err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entityKey, err)
	}
	return doc, nil
}

// KeysByCity lists the entity keys indexed for a city, sorted
func (x *Index) KeysByCity(ctx context.Context, city string) ([]string, error) {
	keys, err := x.rdb.SMembers(ctx, x.cityKey(city)).Result()
	if err != nil {
		return nil, fmt.Errorf("read city %s: %w", city, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the client
func (x *Index) Close() error {
	if x == nil || x.rdb == nil {
		return nil
	}
	return x.rdb.Close()
}

func stringField(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
