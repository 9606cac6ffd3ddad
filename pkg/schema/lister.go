package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/rs/zerolog/log"
)

// EntitySource lists the entities visible to a credential.
type EntitySource interface {
	ListEntities(ctx context.Context, creds docapi.Credentials, version docapi.Version) ([]docapi.EntityInfo, error)
}

// EntitySchemas pairs an entity with its schema names.
type EntitySchemas struct {
	Entity  string   `json:"entity"`
	Schemas []string `json:"schemas"`
	// Error is set when the schema lookup for this entity failed.
	Error string `json:"error,omitempty"`
}

// ListerConfig holds lister configuration.
type ListerConfig struct {
	// MaxConcurrency is the maximum number of parallel schema lookups
	MaxConcurrency int
	// Timeout per entity lookup
	Timeout time.Duration
}

// DefaultListerConfig returns a safe default configuration.
func DefaultListerConfig() ListerConfig {
	return ListerConfig{
		MaxConcurrency: 5,
		Timeout:        15 * time.Second,
	}
}

// Lister lists entities with their schemas, looking schemas up in parallel.
type Lister struct {
	entities EntitySource
	resolver *Resolver
	config   ListerConfig
}

// NewLister creates a new lister.
func NewLister(entities EntitySource, resolver *Resolver, config ListerConfig) *Lister {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Lister{
		entities: entities,
		resolver: resolver,
		config:   config,
	}
}

type lookupJob struct {
	index  int
	entity string
}

// ListEntitiesWithSchemas returns every entity in remote order. A failed
// per-entity lookup leaves that entity with no schemas instead of failing the
// whole listing; only the entity listing itself is fatal.
func (l *Lister) ListEntitiesWithSchemas(ctx context.Context, creds docapi.Credentials, version docapi.Version) ([]EntitySchemas, error) {
	start := time.Now()

	infos, err := l.entities.ListEntities(ctx, creds, version)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	results := make([]EntitySchemas, 0, len(infos))
	for _, info := range infos {
		if info.Name == "" {
			continue
		}
		results = append(results, EntitySchemas{Entity: info.Name, Schemas: []string{}})
	}
	if len(results) == 0 {
		return results, nil
	}

	jobs := make(chan lookupJob, len(results))
	for i := range results {
		jobs <- lookupJob{index: i, entity: results[i].Entity}
	}
	close(jobs)

	workers := min(l.config.MaxConcurrency, len(results))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go l.worker(ctx, creds, version, jobs, results, &wg, i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "schema-lister").
		Str("tenant", creds.TenantID).
		Str("version", string(version)).
		Int("entities", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Entity listing complete")

	return results, nil
}

// worker resolves schema lists; each job owns its own slot in results.
func (l *Lister) worker(ctx context.Context, creds docapi.Credentials, version docapi.Version, jobs <-chan lookupJob, results []EntitySchemas, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("component", "schema-lister").
				Int("worker_id", workerID).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		lookupCtx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		names, err := l.resolver.List(lookupCtx, creds, version, job.entity)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Str("component", "schema-lister").
				Str("entity", job.entity).
				Msg("Schema lookup failed, entity listed without schemas")
			results[job.index].Error = err.Error()
			continue
		}
		results[job.index].Schemas = names
	}
}
