// Package registry persists datasource schemas in the backing store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/chronodex"
	"github.com/kailas-cloud/chronodex/internal/db"
)

const defaultKeyPrefix = "chronodex"

// Registry stores datasource schemas as JSON documents keyed by name.
type Registry struct {
	kv        db.KVStore
	keyPrefix string
}

// New creates a registry over the key-value store.
func New(kv db.KVStore) *Registry {
	return &Registry{kv: kv, keyPrefix: defaultKeyPrefix}
}

// WithKeyPrefix returns a copy using the given key prefix.
func (r *Registry) WithKeyPrefix(prefix string) *Registry {
	return &Registry{kv: r.kv, keyPrefix: prefix}
}

// Create registers a datasource. Fails with chronodex.ErrAlreadyExists if
// the name is taken.
func (r *Registry) Create(ctx context.Context, ds chronodex.DataSource) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode datasource %q: %w", ds.Name(), err)
	}

	created, err := r.kv.SetNX(ctx, r.specKey(ds.Name()), data)
	if err != nil {
		return fmt.Errorf("store datasource %q: %w", ds.Name(), err)
	}
	if !created {
		return fmt.Errorf("datasource %q: %w", ds.Name(), chronodex.ErrAlreadyExists)
	}
	return nil
}

// Get fetches a datasource schema by name. Hydration goes through the
// public constructors, so a stored spec that no longer validates surfaces
// as an error here rather than corrupting ingestion.
func (r *Registry) Get(ctx context.Context, name string) (chronodex.DataSource, error) {
	data, err := r.kv.Get(ctx, r.specKey(name))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return chronodex.DataSource{}, fmt.Errorf("datasource %q: %w", name, chronodex.ErrNotFound)
		}
		return chronodex.DataSource{}, fmt.Errorf("load datasource %q: %w", name, err)
	}

	var ds chronodex.DataSource
	if err := json.Unmarshal(data, &ds); err != nil {
		return chronodex.DataSource{}, fmt.Errorf("decode datasource %q: %w", name, err)
	}
	return ds, nil
}

// List returns the names of all registered datasources, sorted.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	prefix := r.specKey("")
	keys, err := r.kv.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list datasources: %w", err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, prefix))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a datasource schema.
func (r *Registry) Delete(ctx context.Context, name string) error {
	exists, err := r.kv.Exists(ctx, r.specKey(name))
	if err != nil {
		return fmt.Errorf("check datasource %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("datasource %q: %w", name, chronodex.ErrNotFound)
	}
	if err := r.kv.Del(ctx, r.specKey(name)); err != nil {
		return fmt.Errorf("delete datasource %q: %w", name, err)
	}
	return nil
}

func (r *Registry) specKey(name string) string {
	return r.keyPrefix + ":spec:" + name
}
