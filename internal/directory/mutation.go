package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/dn"
	"github.com/choplin/dirsim/internal/filter"
)

// Insert creates an entry at dn. The GUID is taken from the GUID attribute
// when the caller supplies one and generated otherwise. A *SyncError may
// accompany a non-nil entry.
func (d *Directory) Insert(ctx context.Context, rawDN string, attrs Attributes) (*Entry, error) {
	parsed, err := dn.ParseEntry(rawDN)
	if err != nil {
		return nil, err
	}

	attrs = attrs.normalized()
	if !d.hasStructural(attrs) {
		return nil, fmt.Errorf("%w: %s requires one of %s", ErrMissingObjectClass, rawDN, strings.Join(d.cfg.StructuralAttributes, ", "))
	}

	guid, err := d.guidFor(attrs)
	if err != nil {
		return nil, err
	}

	var created database.ObjectRecord
	err = d.db.WithTx(ctx, func(txCtx *database.Context) error {
		objects := database.NewObjectRepository(txCtx)

		existing, err := objects.FindByDN(ctx, parsed.Normalize())
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, parsed.String())
		}

		taken, err := objects.GUIDExists(ctx, guid)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: guid %s", ErrAlreadyExists, guid)
		}

		id, err := objects.Create(ctx, database.NewObject{
			DN:       parsed.String(),
			DNNorm:   parsed.Normalize(),
			ParentDN: parsed.Parent().Normalize(),
			GUID:     guid,
		}, d.now().UTC())
		if err != nil {
			return err
		}

		repo := d.attributes(txCtx)
		for _, name := range attrs.Names() {
			if err := repo.Replace(ctx, id, name, attrs[name]); err != nil {
				return err
			}
		}

		record, err := objects.FindByID(ctx, id)
		if err != nil {
			return err
		}
		created = *record
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	d.logger.Debug("inserted entry", zap.String("dn", created.DN), zap.String("guid", created.GUID))

	syncErr := d.syncInsert(ctx, created, attrs)

	entry, err := d.entry(ctx, d.db, created)
	if err != nil {
		return nil, err
	}
	return entry, syncErr
}

// BatchModify applies mods in order inside one transaction. It reports false
// when no live entry exists at dn.
func (d *Directory) BatchModify(ctx context.Context, rawDN string, mods []Modification) (bool, error) {
	parsed, err := dn.ParseEntry(rawDN)
	if err != nil {
		return false, err
	}
	for i, m := range mods {
		if strings.TrimSpace(m.Attribute) == "" {
			return false, fmt.Errorf("%w: modification %d has no attribute", ErrInvalidModification, i)
		}
		if _, err := ParseOperation(string(m.Operation)); err != nil {
			return false, err
		}
	}

	var (
		record        *database.ObjectRecord
		before, after map[string][]string
	)
	err = d.db.WithTx(ctx, func(txCtx *database.Context) error {
		objects := database.NewObjectRepository(txCtx)
		repo := d.attributes(txCtx)

		var err error
		record, err = objects.FindByDN(ctx, parsed.Normalize())
		if err != nil || record == nil {
			return err
		}

		if before, err = d.forwardValues(ctx, repo, record.ID); err != nil {
			return err
		}
		for _, m := range mods {
			if err := applyModification(ctx, repo, record.ID, m); err != nil {
				return err
			}
		}
		if after, err = d.forwardValues(ctx, repo, record.ID); err != nil {
			return err
		}
		return objects.Touch(ctx, record.ID, d.now().UTC())
	})
	if err != nil {
		return false, storageError(err)
	}
	if record == nil {
		return false, nil
	}

	d.logger.Debug("modified entry", zap.String("dn", record.DN), zap.Int("modifications", len(mods)))
	return true, d.syncModify(ctx, *record, before, after)
}

// DeleteAttributeValues removes the named attributes entirely.
func (d *Directory) DeleteAttributeValues(ctx context.Context, rawDN string, names []string) (bool, error) {
	mods := make([]Modification, 0, len(names))
	for _, name := range names {
		mods = append(mods, Modification{Attribute: name, Operation: OpRemoveAll})
	}
	return d.BatchModify(ctx, rawDN, mods)
}

// Rename moves the entry at dn to newRDN under newParent (the current
// parent when empty). Descendants follow. The naming attribute is updated
// to the new RDN value.
func (d *Directory) Rename(ctx context.Context, rawDN, newRDN, newParent string) (bool, error) {
	source, err := dn.ParseEntry(rawDN)
	if err != nil {
		return false, err
	}
	rdn, err := dn.ParseRDN(newRDN)
	if err != nil {
		return false, err
	}
	parent := source.Parent()
	if strings.TrimSpace(newParent) != "" {
		if parent, err = dn.Parse(newParent); err != nil {
			return false, err
		}
	}
	target := dn.Join(rdn, parent)
	if target.IsDescendantOf(source) {
		return false, fmt.Errorf("%w: %s cannot move below itself", ErrInvalidRename, source.String())
	}

	var renames []renamed
	err = d.db.WithTx(ctx, func(txCtx *database.Context) error {
		objects := database.NewObjectRepository(txCtx)

		record, err := objects.FindByDN(ctx, source.Normalize())
		if err != nil || record == nil {
			return err
		}
		current, err := dn.Parse(record.DN)
		if err != nil {
			return err
		}

		descendants, err := objects.ListDescendants(ctx, record.DNNorm)
		if err != nil {
			return err
		}

		plan := []planned{{record: *record, to: target}}
		for _, child := range descendants {
			childDN, err := dn.Parse(child.DN)
			if err != nil {
				return err
			}
			moved, err := childDN.Rebase(current, target)
			if err != nil {
				return err
			}
			plan = append(plan, planned{record: child, to: moved})
		}

		if target.Normalize() != record.DNNorm {
			for _, p := range plan {
				existing, err := objects.FindByDN(ctx, p.to.Normalize())
				if err != nil {
					return err
				}
				if existing != nil {
					return fmt.Errorf("%w: %s", ErrAlreadyExists, p.to.String())
				}
			}
		}

		now := d.now().UTC()
		for _, p := range plan {
			if _, err := objects.UpdateDN(ctx, p.record.ID, p.to.String(), p.to.Normalize(), p.to.Parent().Normalize(), now); err != nil {
				return err
			}
			renames = append(renames, renamed{id: p.record.ID, oldDN: p.record.DN, newDN: p.to.String()})
		}

		return d.updateNamingAttribute(ctx, d.attributes(txCtx), record.ID, current.RDN(), rdn)
	})
	if err != nil {
		return false, storageError(err)
	}
	if len(renames) == 0 {
		return false, nil
	}

	d.logger.Debug("renamed entry",
		zap.String("from", renames[0].oldDN),
		zap.String("to", renames[0].newDN),
		zap.Int("descendants", len(renames)-1),
	)
	return true, d.syncRename(ctx, renames)
}

// Delete turns the entry at dn and every entry below it into tombstones.
// References to them are cleaned up in the same transaction.
func (d *Directory) Delete(ctx context.Context, rawDN string) (bool, error) {
	parsed, err := dn.ParseEntry(rawDN)
	if err != nil {
		return false, err
	}

	objects := database.NewObjectRepository(d.db)
	record, err := objects.FindByDN(ctx, parsed.Normalize())
	if err != nil {
		return false, storageError(err)
	}
	if record == nil {
		return false, nil
	}
	descendants, err := objects.ListDescendants(ctx, record.DNNorm)
	if err != nil {
		return false, storageError(err)
	}

	// Deepest entries first.
	targets := make([]database.ObjectRecord, 0, len(descendants)+1)
	for i := len(descendants) - 1; i >= 0; i-- {
		targets = append(targets, descendants[i])
	}
	targets = append(targets, *record)

	// Reference cleanup and tombstoning commit together. When the cleanup
	// fails the entries are still tombstoned and the failure is reported.
	var deleted bool
	var cleanupErr error
	err = d.db.WithTx(ctx, func(txCtx *database.Context) error {
		if err := d.cleanupReferences(ctx, txCtx, targets); err != nil {
			cleanupErr = err
			return err
		}
		var err error
		deleted, err = d.tombstone(ctx, txCtx, targets, record.ID)
		return err
	})

	var syncErr error
	if cleanupErr != nil {
		d.logger.Warn("virtual attribute sync failed",
			zap.String("op", "delete"),
			zap.String("dn", record.DN),
			zap.Error(cleanupErr),
		)
		syncErr = &SyncError{Op: "delete", DN: record.DN, Err: cleanupErr}
		err = d.db.WithTx(ctx, func(txCtx *database.Context) error {
			var err error
			deleted, err = d.tombstone(ctx, txCtx, targets, record.ID)
			return err
		})
	}
	if err != nil {
		return false, storageError(err)
	}

	d.logger.Debug("deleted entry", zap.String("dn", record.DN), zap.Int("descendants", len(targets)-1))
	return deleted, syncErr
}

// tombstone soft-deletes targets and reports whether the entry with rootID
// was live.
func (d *Directory) tombstone(ctx context.Context, txCtx *database.Context, targets []database.ObjectRecord, rootID int64) (bool, error) {
	if err := d.inject("tombstone"); err != nil {
		return false, err
	}
	objects := database.NewObjectRepository(txCtx)
	now := d.now().UTC()
	deleted := false
	for _, target := range targets {
		ok, err := objects.SoftDelete(ctx, target.ID, now)
		if err != nil {
			return false, err
		}
		if target.ID == rootID {
			deleted = ok
		}
	}
	return deleted, nil
}

type planned struct {
	record database.ObjectRecord
	to     dn.DN
}

type renamed struct {
	id    int64
	oldDN string
	newDN string
}

func applyModification(ctx context.Context, repo *database.AttributeRepository, objectID int64, m Modification) error {
	op, _ := ParseOperation(string(m.Operation))
	switch op {
	case OpAdd:
		return repo.Add(ctx, objectID, m.Attribute, m.Values)
	case OpReplace:
		return repo.Replace(ctx, objectID, m.Attribute, m.Values)
	case OpRemove:
		_, err := repo.RemoveValues(ctx, objectID, m.Attribute, m.Values)
		return err
	case OpRemoveAll:
		_, err := repo.RemoveAll(ctx, objectID, m.Attribute)
		return err
	}
	return fmt.Errorf("%w: unknown operation %q", ErrInvalidModification, m.Operation)
}

// updateNamingAttribute replaces the old RDN value with the new one when the
// RDN is single-valued.
func (d *Directory) updateNamingAttribute(ctx context.Context, repo *database.AttributeRepository, objectID int64, oldRDN, newRDN dn.RDN) error {
	if oldRDN.Normalize() == newRDN.Normalize() {
		return nil
	}
	oldAVA, okOld := oldRDN.Single()
	newAVA, okNew := newRDN.Single()
	if !okOld || !okNew {
		return nil
	}

	if _, err := repo.RemoveValues(ctx, objectID, oldAVA.Type, []string{oldAVA.Value}); err != nil {
		return err
	}
	_, err := repo.AddMissing(ctx, objectID, newAVA.Type, []string{newAVA.Value})
	return err
}

func (d *Directory) hasStructural(attrs Attributes) bool {
	if len(d.cfg.StructuralAttributes) == 0 {
		return true
	}
	for _, name := range d.cfg.StructuralAttributes {
		if attrs.Has(name) {
			return true
		}
	}
	return false
}

func (d *Directory) guidFor(attrs Attributes) (string, error) {
	if d.cfg.GUIDAttribute == "" {
		return uuid.NewString(), nil
	}
	values := attrs.Get(d.cfg.GUIDAttribute)
	switch len(values) {
	case 0:
		return uuid.NewString(), nil
	case 1:
		parsed, err := uuid.Parse(strings.TrimSpace(values[0]))
		if err != nil {
			return "", fmt.Errorf("%w: guid %q: %v", ErrMalformedIdentifier, values[0], err)
		}
		return parsed.String(), nil
	}
	return "", fmt.Errorf("%w: %s carries %d values", ErrMalformedIdentifier, d.cfg.GUIDAttribute, len(values))
}

// forwardValues snapshots the forward attributes of one object keyed by
// folded attribute name.
func (d *Directory) forwardValues(ctx context.Context, repo *database.AttributeRepository, objectID int64) (map[string][]string, error) {
	out := make(map[string][]string, len(d.cfg.VirtualAttributes))
	for _, v := range d.cfg.VirtualAttributes {
		values, err := repo.Values(ctx, objectID, v.Forward)
		if err != nil {
			return nil, err
		}
		out[filter.FoldName(v.Forward)] = values
	}
	return out, nil
}
