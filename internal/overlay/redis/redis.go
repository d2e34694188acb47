// Package redis provides a Redis-backed overlay store. Each field lives in
// its own hash keyed by path so partial patches never clobber each other.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fruitsalade/docarchive/internal/overlay"
	"github.com/fruitsalade/docarchive/internal/retry"
)

const defaultPrefix = "docarchive:metadata"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the hashes (default "docarchive:metadata").
	Prefix string
}

// Store is a Redis overlay store.
type Store struct {
	client      *goredis.Client
	selectedKey string
	typeKey     string
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{
		client:      client,
		selectedKey: prefix + ":selected",
		typeKey:     prefix + ":type",
	}, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// GetAll merges both hashes into records sorted by path.
func (s *Store) GetAll(ctx context.Context) ([]overlay.Record, error) {
	var selCmd, typeCmd *goredis.MapStringStringCmd
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		selCmd = p.HGetAll(ctx, s.selectedKey)
		typeCmd = p.HGetAll(ctx, s.typeKey)
		return nil
	})
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read metadata hashes: %w", err))
	}

	byPath := make(map[string]*overlay.Record)
	get := func(path string) *overlay.Record {
		r, ok := byPath[path]
		if !ok {
			r = &overlay.Record{Path: path}
			byPath[path] = r
		}
		return r
	}

	for path, v := range selCmd.Val() {
		b, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		get(path).IsSelected = &b
	}
	for path, v := range typeCmd.Val() {
		t, err := overlay.ParseFileType(v)
		if err != nil {
			continue
		}
		get(path).FileType = &t
	}

	records := make([]overlay.Record, 0, len(byPath))
	for _, r := range byPath {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// Save writes the fields set in patch in a single transaction.
func (s *Store) Save(ctx context.Context, path string, patch overlay.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		if patch.Selected != nil {
			p.HSet(ctx, s.selectedKey, path, strconv.FormatBool(*patch.Selected))
		}
		if patch.Type != nil {
			p.HSet(ctx, s.typeKey, path, string(*patch.Type))
		}
		return nil
	})
	if err != nil {
		return retry.Retryable(fmt.Errorf("write metadata for %s: %w", path, err))
	}
	return nil
}
