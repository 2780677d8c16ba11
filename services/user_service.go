// Package services holds the cache-aside resolution engine: reads are
// served from the user cache when it can be trusted and from the
// authoritative directory otherwise, with every successful directory
// read written through to the cache.
package services

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/CorsairOps/user-service/cache"
	"github.com/CorsairOps/user-service/directory"
	"github.com/CorsairOps/user-service/domain"
	apperrors "github.com/CorsairOps/user-service/errors"
)

// defaultFetchLimit bounds concurrent per-ID directory fetches in a batch.
const defaultFetchLimit = 8

// UserService resolves user records cache-first against the directory.
// The cache is never authoritative: any cache failure degrades to a
// direct directory read, and cache writes are best-effort.
type UserService struct {
	store      cache.UserStore
	dir        directory.Client
	fetchLimit int
}

// NewUserService creates a resolver over the given cache and directory.
func NewUserService(store cache.UserStore, dir directory.Client) *UserService {
	return &UserService{
		store:      store,
		dir:        dir,
		fetchLimit: defaultFetchLimit,
	}
}

// ListAllUsers returns every user in the directory, serving from the
// cache when the population oracle says it is complete.
//
// The oracle is approximate: it compares the live cache count against
// the directory's estimated population, which is safe while the
// population only grows. A delete-then-recreate at equal count can make
// a stale cache read as fresh; the entry TTL bounds that window. When
// the backend offers no estimate, the cache is always treated as stale
// for full listings.
func (s *UserService) ListAllUsers(ctx context.Context) ([]domain.UserRecord, error) {
	if s.cacheIsComplete(ctx) {
		entries, err := s.store.All(ctx)
		if err == nil {
			records := make([]domain.UserRecord, 0, len(entries))
			for _, entry := range entries {
				records = append(records, entry.Record())
			}
			sortByID(records)
			return records, nil
		}
		log.Ctx(ctx).Warn().Err(err).Msg("user cache read failed, falling back to directory listing")
	}

	records, err := s.dir.ListAll(ctx)
	if err != nil {
		return nil, s.mapDirectoryError(err)
	}
	s.writeThrough(ctx, records)
	sortByID(records)
	return records, nil
}

// cacheIsComplete is the staleness oracle for full listings: the cache
// is trusted only when its live count has caught up with the directory's
// estimated population.
func (s *UserService) cacheIsComplete(ctx context.Context) bool {
	population, err := s.dir.EstimatedPopulation(ctx)
	if err != nil {
		if !errors.Is(err, directory.ErrPopulationUnsupported) {
			log.Ctx(ctx).Warn().Err(err).Msg("population estimate failed, treating cache as stale")
		}
		return false
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("user cache count failed, treating cache as stale")
		return false
	}
	return count >= population
}

// GetUserByID resolves one user cache-first.
func (s *UserService) GetUserByID(ctx context.Context, id string) (*domain.UserRecord, error) {
	entry, err := s.store.GetOne(ctx, id)
	if err == nil {
		rec := entry.Record()
		return &rec, nil
	}
	if !errors.Is(err, cache.ErrEntryNotFound) {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("user cache read failed, falling back to directory")
	}

	rec, err := s.dir.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, apperrors.NewNotFound(id)
		}
		return nil, s.mapDirectoryError(err)
	}

	s.writeThrough(ctx, []domain.UserRecord{*rec})
	return rec, nil
}

// fetchResult tags one missing ID's directory outcome.
type fetchResult struct {
	id  string
	rec *domain.UserRecord
	err error
}

// GetUsersByIDs resolves a set of IDs, serving hits from the cache and
// fetching the remainder concurrently from the directory.
//
// With allowEmpty false, an empty input set is a bad request, and any
// unresolvable ID fails the whole call; every requested ID is still
// attempted first so the failure enumerates all offending IDs. With
// allowEmpty true the call never fails on a per-ID basis: an empty set
// yields an empty result and unresolvable IDs are omitted.
//
// Results come back in the caller's ID order.
func (s *UserService) GetUsersByIDs(ctx context.Context, ids []string, allowEmpty bool) ([]domain.UserRecord, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		if allowEmpty {
			return []domain.UserRecord{}, nil
		}
		return nil, apperrors.NewBadRequest("no user ids requested")
	}

	found := make(map[string]domain.UserRecord, len(ids))
	cached, err := s.store.GetMany(ctx, ids)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("user cache read failed, resolving all ids against directory")
		cached = nil
	}
	for id, entry := range cached {
		found[id] = entry.Record()
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		if err := s.resolveMissing(ctx, missing, allowEmpty, found); err != nil {
			return nil, err
		}
	}

	records := make([]domain.UserRecord, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// resolveMissing fans out one directory fetch per missing ID, writes
// successes through to the cache, and merges them into found. Each task
// only ever touches its own result slot and its own cache key, so no
// coordination beyond the join is needed.
func (s *UserService) resolveMissing(ctx context.Context, missing []string, allowEmpty bool, found map[string]domain.UserRecord) error {
	results := make([]fetchResult, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for i, id := range missing {
		g.Go(func() error {
			rec, err := s.dir.GetByID(gctx, id)
			results[i] = fetchResult{id: id, rec: rec, err: err}
			// Failures are tagged per-ID, never abort the group: the
			// policy decision needs every ID's outcome.
			return nil
		})
	}
	_ = g.Wait()

	var fetched []domain.UserRecord
	var notFound []string
	var transient error
	for _, res := range results {
		switch {
		case res.err == nil:
			found[res.id] = *res.rec
			fetched = append(fetched, *res.rec)
		case errors.Is(res.err, directory.ErrNotFound):
			notFound = append(notFound, res.id)
		default:
			log.Ctx(ctx).Warn().Err(res.err).Str("user_id", res.id).Msg("directory fetch failed")
			if transient == nil {
				transient = res.err
			}
		}
	}

	if len(fetched) > 0 {
		s.writeThrough(ctx, fetched)
	}

	if allowEmpty {
		// Unresolvable and failed IDs are omitted, not fatal.
		return nil
	}
	if transient != nil {
		return s.mapDirectoryError(transient)
	}
	if len(notFound) > 0 {
		sort.Strings(notFound)
		return apperrors.NewNotFound(notFound...)
	}
	return nil
}

// writeThrough persists fetched records into the cache. Failures are
// logged and swallowed: the cache is an optimization, not a dependency.
func (s *UserService) writeThrough(ctx context.Context, records []domain.UserRecord) {
	entries := make([]*cache.CachedEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, cache.NewCachedEntry(rec))
	}
	if err := s.store.PutMany(ctx, entries); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int("entries", len(entries)).Msg("user cache write failed")
	}
}

func (s *UserService) mapDirectoryError(err error) error {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		// Credential manager failures already carry their code.
		return svcErr
	}
	return apperrors.NewDirectoryUnavailable(err)
}

func sortByID(records []domain.UserRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

// dedupe drops empty and repeated IDs, preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
