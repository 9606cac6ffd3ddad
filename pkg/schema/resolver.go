// Package schema discovers the schemas of remote entities.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/docapi-export/pkg/cache"
	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Source lists the schemas of an entity remotely.
type Source interface {
	ListSchemas(ctx context.Context, creds docapi.Credentials, version docapi.Version, entity string) ([]docapi.SchemaInfo, error)
}

// Cache stores schema lists between calls. *cache.Manager implements it.
type Cache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, schemas []string) error
}

// Resolver picks the schema to use when the caller did not name one.
type Resolver struct {
	source Source
	cache  Cache
	logger zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables caching of successful, non-empty schema lists.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// NewResolver creates a resolver over a remote source.
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		logger: log.With().Str("component", "schema-resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns explicit unchanged when set. Otherwise it returns the first
// named schema of the entity, or "" when the remote answered with a
// non-success status or offered no named schema. Only transport failures and
// cancellation are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, creds docapi.Credentials, version docapi.Version, entity, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	names, err := r.List(ctx, creds, version, entity)
	if err != nil {
		var remoteErr *docapi.RemoteError
		if errors.As(err, &remoteErr) {
			r.logger.Warn().
				Str("tenant", creds.TenantID).
				Str("entity", entity).
				Int("status", remoteErr.StatusCode).
				Msg("Schema listing rejected, no schema resolved")
			return "", nil
		}
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}

	r.logger.Debug().Str("entity", entity).Str("schema", names[0]).Msg("Schema resolved")
	return names[0], nil
}

// List returns the named schemas of an entity in remote order.
func (r *Resolver) List(ctx context.Context, creds docapi.Credentials, version docapi.Version, entity string) ([]string, error) {
	key := cache.SchemaKey(creds.TenantID, string(version), entity, creds.AccessKey)

	if r.cache != nil {
		entry, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			return entry.Schemas, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			r.logger.Warn().Err(err).Str("entity", entity).Msg("Schema cache get error")
		}
	}

	infos, err := r.source.ListSchemas(ctx, creds, version, entity)
	if err != nil {
		return nil, fmt.Errorf("list schemas for %q: %w", entity, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Name != "" {
			names = append(names, info.Name)
		}
	}

	if r.cache != nil && len(names) > 0 {
		if err := r.cache.Set(ctx, key, names); err != nil {
			r.logger.Warn().Err(err).Str("entity", entity).Msg("Schema cache set error")
		}
	}

	return names, nil
}
