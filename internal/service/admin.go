package service

import (
	"context"
	"fmt"
	"time"

	"keymint/internal/models"
	"keymint/internal/store"
)

// MaxGenerateCount caps the key batch size per generate call.
const MaxGenerateCount = 100

// Admin implements the guarded administrative mutations over the license
// store. Every successful mutation appends one audit entry.
type Admin struct {
	Licenses store.LicenseStore
	Audit    store.AuditStore

	now func() time.Time
}

func NewAdmin(licenses store.LicenseStore, audit store.AuditStore) *Admin {
	return &Admin{Licenses: licenses, Audit: audit, now: time.Now}
}

func (a *Admin) audit(action, key, origin, details string) {
	entry := &models.AuditEntry{
		Action:  action,
		Origin:  origin,
		Details: details,
	}
	if key != "" {
		entry.LicenseKey = &key
	}
	AsyncAudit(a.Audit, entry)
}

// Generate mints count new keys of the given class. The whole batch is
// inserted in one transaction, so a fault or uniqueness violation persists
// nothing: every key that exists was returned to the caller. A uniqueness
// hit is reported as a clean failure, never skipped; the randomness makes
// it statistically impossible, so a hit means something is wrong.
func (a *Admin) Generate(ctx context.Context, class models.LicenseClass, count int, notes, origin string) ([]string, error) {
	if count < 1 {
		count = 1
	}
	if count > MaxGenerateCount {
		count = MaxGenerateCount
	}

	now := a.now()
	keys := make([]string, 0, count)
	batch := make([]*models.License, 0, count)
	for i := 0; i < count; i++ {
		key, err := GenerateKey(class)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		batch = append(batch, &models.License{
			Key:       key,
			Class:     class,
			CreatedAt: now,
			ExpiresAt: class.ExpiryFrom(now),
			Notes:     notes,
		})
	}

	if err := a.Licenses.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	a.audit(models.ActionKeysGenerated, "", origin, fmt.Sprintf("Type: %s, Count: %d", class, len(keys)))
	return keys, nil
}

func (a *Admin) Block(ctx context.Context, key, origin string) error {
	if err := a.Licenses.SetBlocked(ctx, key, true); err != nil {
		return err
	}
	a.audit(models.ActionKeyBlocked, key, origin, "")
	return nil
}

func (a *Admin) Unblock(ctx context.Context, key, origin string) error {
	if err := a.Licenses.SetBlocked(ctx, key, false); err != nil {
		return err
	}
	a.audit(models.ActionKeyUnblocked, key, origin, "")
	return nil
}

// ResetDevice clears the device binding so a new device can activate.
func (a *Admin) ResetDevice(ctx context.Context, key, origin string) error {
	if err := a.Licenses.ResetDevice(ctx, key); err != nil {
		return err
	}
	a.audit(models.ActionHWIDReset, key, origin, "")
	return nil
}

// Extend advances the expiry by days. Lifetime licenses report
// store.ErrNotExtensible.
func (a *Admin) Extend(ctx context.Context, key string, days int, origin string) (time.Time, error) {
	newExpiry, err := a.Licenses.Extend(ctx, key, days)
	if err != nil {
		return time.Time{}, err
	}
	a.audit(models.ActionKeyExtended, key, origin, fmt.Sprintf("Added %d days", days))
	return newExpiry, nil
}

func (a *Admin) Delete(ctx context.Context, key, origin string) error {
	if err := a.Licenses.Delete(ctx, key); err != nil {
		return err
	}
	a.audit(models.ActionKeyDeleted, key, origin, "")
	return nil
}

// List returns licenses matching the filter. The status filter is applied
// here against the computed status so every call site agrees with StatusOf.
func (a *Admin) List(ctx context.Context, filter models.ListFilter) ([]models.License, error) {
	licenses, err := a.Licenses.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.Status == "" {
		return licenses, nil
	}

	now := a.now()
	filtered := licenses[:0]
	for _, l := range licenses {
		if StatusOf(&l, now) == filter.Status {
			filtered = append(filtered, l)
		}
	}
	return filtered, nil
}
