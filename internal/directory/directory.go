// Package directory emulates LDAP directory semantics (search, add, modify,
// rename, delete) over the relational store.
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/dn"
	"github.com/choplin/dirsim/internal/filter"
	"github.com/choplin/dirsim/internal/scope"
)

// Directory is one isolated emulated directory.
type Directory struct {
	name     string
	db       *database.Context
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	dnValued map[string]struct{}

	// fault, when set, runs before each synchronizer step (named after the
	// operation) and before tombstoning ("tombstone"), and can force it to fail.
	fault func(step string) error
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

// New wraps an opened store.
func New(name string, db *database.Context, cfg Config, opts ...Option) *Directory {
	d := &Directory{
		name:     name,
		db:       db,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		dnValued: cfg.dnValued(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("directory", name))
	return d
}

// Name returns the directory name.
func (d *Directory) Name() string {
	return d.name
}

// Config returns the engine configuration.
func (d *Directory) Config() Config {
	return d.cfg
}

// Search returns the live entries inside the query's scope that satisfy its
// filter, in insertion order unless OrderBy is set.
func (d *Directory) Search(ctx context.Context, q Query) ([]*Entry, error) {
	scopeType := q.Scope
	if scopeType == "" {
		scopeType = scope.ScopeSearch
	}
	constraint, err := scope.Resolve(scope.Scope{Type: scopeType, BaseDN: q.BaseDN})
	if err != nil {
		return nil, err
	}

	where, err := filter.Compile(q.Filter, database.FilterStorage{}, filter.Options{
		ANRAttributes: d.cfg.ANRAttributes,
		Fold:          d.fold,
	})
	if err != nil {
		return nil, err
	}

	records, err := database.NewSearchQuery(d.db).Run(ctx, database.SearchParams{
		Scope:      constraint,
		Where:      where,
		Limit:      q.SizeLimit,
		OrderBy:    q.OrderBy,
		Descending: q.Descending,
	})
	if err != nil {
		return nil, storageError(err)
	}

	entries, err := d.entries(ctx, d.db, records, selection(q.Attributes))
	if err != nil {
		return nil, storageError(err)
	}

	d.logger.Debug("search",
		zap.String("scope", scope.FormatScope(scope.Scope{Type: scopeType, BaseDN: q.BaseDN})),
		zap.Stringer("filter", q.Filter),
		zap.Int("results", len(entries)),
	)
	return entries, nil
}

// FindByDN returns the live entry at dn, or nil.
func (d *Directory) FindByDN(ctx context.Context, rawDN string) (*Entry, error) {
	parsed, err := dn.ParseEntry(rawDN)
	if err != nil {
		return nil, err
	}

	record, err := database.NewObjectRepository(d.db).FindByDN(ctx, parsed.Normalize())
	if err != nil {
		return nil, storageError(err)
	}
	if record == nil {
		return nil, nil
	}
	return d.entry(ctx, d.db, *record)
}

// FindByGUID returns the live entry with the given GUID, or nil.
func (d *Directory) FindByGUID(ctx context.Context, guid string) (*Entry, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(guid))
	if err != nil {
		return nil, fmt.Errorf("%w: guid %q: %v", ErrMalformedIdentifier, guid, err)
	}

	record, err := database.NewObjectRepository(d.db).FindByGUID(ctx, parsed.String())
	if err != nil {
		return nil, storageError(err)
	}
	if record == nil {
		return nil, nil
	}
	return d.entry(ctx, d.db, *record)
}

// FindDeleted returns the tombstones that last held dn, newest first.
// Tombstones keep the attributes they had when deleted.
func (d *Directory) FindDeleted(ctx context.Context, rawDN string) ([]*Entry, error) {
	parsed, err := dn.ParseEntry(rawDN)
	if err != nil {
		return nil, err
	}

	records, err := database.NewObjectRepository(d.db).ListDeleted(ctx, parsed.Normalize())
	if err != nil {
		return nil, storageError(err)
	}
	entries, err := d.entries(ctx, d.db, records, nil)
	if err != nil {
		return nil, storageError(err)
	}
	return entries, nil
}

// Count returns the number of live entries.
func (d *Directory) Count(ctx context.Context) (int64, error) {
	n, err := database.NewObjectRepository(d.db).Count(ctx)
	return n, storageError(err)
}

// Clear removes every entry and tombstone.
func (d *Directory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := database.ClearDatabase(d.db); err != nil {
		return storageError(err)
	}
	d.logger.Info("cleared directory")
	return nil
}

// fold is the value matching key shared by the store and the filter
// translator. DN-valued attributes compare as normalised DNs.
func (d *Directory) fold(attribute, value string) string {
	if _, ok := d.dnValued[filter.FoldName(attribute)]; ok {
		if norm, err := dn.Normalize(value); err == nil && norm != "" {
			return norm
		}
	}
	return filter.FoldValue(value)
}

func (d *Directory) inject(step string) error {
	if d.fault == nil {
		return nil
	}
	return d.fault(step)
}

func (d *Directory) attributes(c *database.Context) *database.AttributeRepository {
	return database.NewAttributeRepository(c, d.fold)
}

func (d *Directory) entry(ctx context.Context, c *database.Context, record database.ObjectRecord) (*Entry, error) {
	entries, err := d.entries(ctx, c, []database.ObjectRecord{record}, nil)
	if err != nil {
		return nil, storageError(err)
	}
	return entries[0], nil
}

func (d *Directory) entries(ctx context.Context, c *database.Context, records []database.ObjectRecord, names []string) ([]*Entry, error) {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	loaded, err := d.attributes(c).LoadMany(ctx, ids, names)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(records))
	for _, r := range records {
		attrs := make(Attributes, len(loaded[r.ID]))
		for _, a := range loaded[r.ID] {
			attrs[a.Name] = a.Values
		}
		entries = append(entries, &Entry{
			DN:         r.DN,
			GUID:       r.GUID,
			Attributes: attrs,
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
			DeletedAt:  r.DeletedAt,
		})
	}
	return entries, nil
}

func selection(names []string) []string {
	for _, name := range names {
		if name == "*" {
			return nil
		}
	}
	return names
}
