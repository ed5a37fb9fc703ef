package directory

import (
	"context"

	"go.uber.org/zap"

	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/dn"
	"github.com/choplin/dirsim/internal/filter"
)

// The synchronizer keeps reverse attributes consistent with forward ones.
// Each run happens in its own transaction after the primary write has
// committed, so a failure here never undoes the caller's change. Delete is
// the exception: its cleanup shares the tombstone transaction and is dropped
// on failure, see Directory.Delete.

func (d *Directory) runSync(ctx context.Context, op, target string, fn func(txCtx *database.Context) error) error {
	if len(d.cfg.VirtualAttributes) == 0 && len(d.cfg.ReferenceAttributes) == 0 {
		return nil
	}

	err := d.db.WithTx(ctx, func(txCtx *database.Context) error {
		if err := d.inject(op); err != nil {
			return err
		}
		return fn(txCtx)
	})
	if err == nil {
		return nil
	}

	d.logger.Warn("virtual attribute sync failed",
		zap.String("op", op),
		zap.String("dn", target),
		zap.Error(err),
	)
	return &SyncError{Op: op, DN: target, Err: err}
}

func (d *Directory) syncInsert(ctx context.Context, created database.ObjectRecord, attrs Attributes) error {
	return d.runSync(ctx, "insert", created.DN, func(txCtx *database.Context) error {
		objects := database.NewObjectRepository(txCtx)
		repo := d.attributes(txCtx)

		for _, v := range d.cfg.VirtualAttributes {
			for _, value := range attrs.Get(v.Forward) {
				if err := d.addReverse(ctx, objects, repo, v, value, created.DN); err != nil {
					return err
				}
			}

			// Objects that referenced this DN before it existed.
			refs, err := repo.FindReferences(ctx, v.Forward, created.DN)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				if _, err := repo.AddMissing(ctx, created.ID, v.Reverse, []string{ref.ObjectDN}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (d *Directory) syncModify(ctx context.Context, record database.ObjectRecord, before, after map[string][]string) error {
	type change struct {
		v       VirtualAttribute
		added   []string
		removed []string
	}

	var changes []change
	for _, v := range d.cfg.VirtualAttributes {
		key := filter.FoldName(v.Forward)
		added, removed := d.diff(v.Forward, before[key], after[key])
		if len(added) > 0 || len(removed) > 0 {
			changes = append(changes, change{v: v, added: added, removed: removed})
		}
	}
	if len(changes) == 0 {
		return nil
	}

	return d.runSync(ctx, "modify", record.DN, func(txCtx *database.Context) error {
		objects := database.NewObjectRepository(txCtx)
		repo := d.attributes(txCtx)
		for _, c := range changes {
			for _, value := range c.removed {
				if err := d.removeReverse(ctx, objects, repo, c.v, value, record.DN); err != nil {
					return err
				}
			}
			for _, value := range c.added {
				if err := d.addReverse(ctx, objects, repo, c.v, value, record.DN); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (d *Directory) syncRename(ctx context.Context, renames []renamed) error {
	var attrs []string
	for _, v := range d.cfg.VirtualAttributes {
		if v.RewriteOnRename {
			attrs = append(attrs, v.Forward, v.Reverse)
		}
	}
	attrs = append(attrs, d.cfg.ReferenceAttributes...)
	if len(attrs) == 0 {
		return nil
	}

	return d.runSync(ctx, "rename", renames[0].newDN, func(txCtx *database.Context) error {
		repo := d.attributes(txCtx)
		for _, r := range renames {
			for _, attr := range attrs {
				refs, err := repo.FindReferences(ctx, attr, r.oldDN)
				if err != nil {
					return err
				}
				for _, ref := range refs {
					if err := repo.RewriteValue(ctx, ref.ValueID, attr, r.newDN); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// cleanupReferences strips reverse and forward values that name any of the
// targets from entries outside the deleted set. It runs inside the delete
// transaction.
func (d *Directory) cleanupReferences(ctx context.Context, txCtx *database.Context, targets []database.ObjectRecord) error {
	if len(d.cfg.VirtualAttributes) == 0 {
		return nil
	}
	if err := d.inject("delete"); err != nil {
		return err
	}

	doomed := make(map[int64]struct{}, len(targets))
	for _, t := range targets {
		doomed[t.ID] = struct{}{}
	}

	repo := d.attributes(txCtx)
	for _, t := range targets {
		for _, v := range d.cfg.VirtualAttributes {
			for _, attr := range []string{v.Forward, v.Reverse} {
				refs, err := repo.FindReferences(ctx, attr, t.DN)
				if err != nil {
					return err
				}
				for _, ref := range refs {
					if _, ok := doomed[ref.ObjectID]; ok {
						continue
					}
					if _, err := repo.RemoveValues(ctx, ref.ObjectID, attr, []string{t.DN}); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// addReverse records source on the reverse attribute of the object named by
// value. Values that are not DNs or name no live object are left dangling.
func (d *Directory) addReverse(ctx context.Context, objects *database.ObjectRepository, repo *database.AttributeRepository, v VirtualAttribute, value, source string) error {
	target, err := d.lookupReference(ctx, objects, value)
	if err != nil || target == nil {
		return err
	}
	_, err = repo.AddMissing(ctx, target.ID, v.Reverse, []string{source})
	return err
}

func (d *Directory) removeReverse(ctx context.Context, objects *database.ObjectRepository, repo *database.AttributeRepository, v VirtualAttribute, value, source string) error {
	target, err := d.lookupReference(ctx, objects, value)
	if err != nil || target == nil {
		return err
	}
	_, err = repo.RemoveValues(ctx, target.ID, v.Reverse, []string{source})
	return err
}

func (d *Directory) lookupReference(ctx context.Context, objects *database.ObjectRepository, value string) (*database.ObjectRecord, error) {
	parsed, err := dn.ParseEntry(value)
	if err != nil {
		return nil, nil
	}
	return objects.FindByDN(ctx, parsed.Normalize())
}

// diff compares two value lists by matching key.
func (d *Directory) diff(attribute string, before, after []string) (added, removed []string) {
	beforeKeys := make(map[string]struct{}, len(before))
	for _, v := range before {
		beforeKeys[d.fold(attribute, v)] = struct{}{}
	}
	afterKeys := make(map[string]struct{}, len(after))
	for _, v := range after {
		afterKeys[d.fold(attribute, v)] = struct{}{}
	}

	for _, v := range after {
		if _, ok := beforeKeys[d.fold(attribute, v)]; !ok {
			added = append(added, v)
		}
	}
	for _, v := range before {
		if _, ok := afterKeys[d.fold(attribute, v)]; !ok {
			removed = append(removed, v)
		}
	}
	return added, removed
}
