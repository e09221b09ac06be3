package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keymint/internal/models"
	"keymint/internal/store"
)

// Reason is the machine-readable kind of an expected domain outcome.
// These are normal results, not faults: a store or transport failure is
// returned as an error instead.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotFound       Reason = "not_found"
	ReasonBlocked        Reason = "blocked"
	ReasonExpired        Reason = "expired"
	ReasonDeviceMismatch Reason = "device_mismatch"
	ReasonNotActivated   Reason = "not_activated"
)

// Result is the outcome of an activation or verification attempt.
type Result struct {
	OK        bool
	Reason    Reason
	Message   string
	Class     models.LicenseClass
	ExpiresAt *time.Time
}

// InfoView is the redacted license projection returned to a bound device.
type InfoView struct {
	Key       string               `json:"key"`
	Class     models.LicenseClass  `json:"type"`
	Status    models.LicenseStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	DaysLeft  *int                 `json:"days_left,omitempty"`
	Activated bool                 `json:"activated"`
	Blocked   bool                 `json:"blocked"`
}

// Engine implements the license activation state machine. The only state
// transition it performs is pending -> activated, and that write is a
// single conditional update in the store, so two racing activations of the
// same key resolve to exactly one winner.
type Engine struct {
	Licenses store.LicenseStore
	Audit    store.AuditStore

	now func() time.Time
}

func NewEngine(licenses store.LicenseStore, audit store.AuditStore) *Engine {
	return &Engine{Licenses: licenses, Audit: audit, now: time.Now}
}

func (e *Engine) audit(action, key, deviceID, origin, details string) {
	entry := &models.AuditEntry{
		Action:  action,
		Origin:  origin,
		Details: details,
	}
	if key != "" {
		entry.LicenseKey = &key
	}
	if deviceID != "" {
		entry.DeviceID = &deviceID
	}
	AsyncAudit(e.Audit, entry)
}

// Activate binds the license to the device on first use, or confirms an
// existing binding from the same device. Every failure of note is audited.
func (e *Engine) Activate(ctx context.Context, key, deviceID, origin string) (Result, error) {
	now := e.now()

	l, err := e.Licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.audit(models.ActionActivationFailed, key, deviceID, origin, "Key not found")
			return Result{Reason: ReasonNotFound, Message: "Invalid license key"}, nil
		}
		return Result{}, err
	}

	if l.Blocked {
		e.audit(models.ActionActivationBlocked, key, deviceID, origin, "Key is blocked")
		return Result{Reason: ReasonBlocked, Message: "License is blocked"}, nil
	}

	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		e.audit(models.ActionActivationExpired, key, deviceID, origin, "Key expired")
		return Result{Reason: ReasonExpired, Message: "License expired"}, nil
	}

	if l.Activated {
		if l.DeviceID != nil && *l.DeviceID == deviceID {
			// Idempotent re-activation from the bound device.
			return Result{OK: true, Message: "License activated", Class: l.Class, ExpiresAt: l.ExpiresAt}, nil
		}
		e.audit(models.ActionActivationMismatch, key, deviceID, origin,
			fmt.Sprintf("Expected: %s", maskDevice(l.DeviceID)))
		return Result{Reason: ReasonDeviceMismatch, Message: "License bound to another device"}, nil
	}

	won, err := e.Licenses.Activate(ctx, key, deviceID, origin, now)
	if err != nil {
		return Result{}, err
	}

	if !won {
		// Another request bound the key between our read and the
		// conditional update. Re-read to tell the idempotent case from a
		// genuine mismatch.
		l, err = e.Licenses.GetByKey(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if l.Activated && l.DeviceID != nil && *l.DeviceID == deviceID {
			return Result{OK: true, Message: "License activated", Class: l.Class, ExpiresAt: l.ExpiresAt}, nil
		}
		e.audit(models.ActionActivationMismatch, key, deviceID, origin,
			fmt.Sprintf("Expected: %s", maskDevice(l.DeviceID)))
		return Result{Reason: ReasonDeviceMismatch, Message: "License bound to another device"}, nil
	}

	e.audit(models.ActionActivationSuccess, key, deviceID, origin, fmt.Sprintf("Type: %s", l.Class))
	return Result{OK: true, Message: "License activated", Class: l.Class, ExpiresAt: l.ExpiresAt}, nil
}

// Verify is the read-only replay of the activation checks. Invalidity is a
// normal result: the error return is reserved for store faults.
func (e *Engine) Verify(ctx context.Context, key, deviceID string) (Result, error) {
	now := e.now()

	l, err := e.Licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Reason: ReasonNotFound, Message: "Key not found"}, nil
		}
		return Result{}, err
	}

	if l.Blocked {
		return Result{Reason: ReasonBlocked, Message: "License blocked"}, nil
	}

	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return Result{Reason: ReasonExpired, Message: "License expired"}, nil
	}

	if !l.Activated {
		return Result{Reason: ReasonNotActivated, Message: "License not activated"}, nil
	}

	if l.DeviceID == nil || *l.DeviceID != deviceID {
		return Result{Reason: ReasonDeviceMismatch, Message: "HWID mismatch"}, nil
	}

	return Result{OK: true, Message: "License valid", Class: l.Class, ExpiresAt: l.ExpiresAt}, nil
}

// Info returns the redacted license view for an exact key+device pair.
func (e *Engine) Info(ctx context.Context, key, deviceID string) (*InfoView, error) {
	l, err := e.Licenses.GetByKeyAndDevice(ctx, key, deviceID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	return &InfoView{
		Key:       maskKey(l.Key),
		Class:     l.Class,
		Status:    StatusOf(l, now),
		CreatedAt: l.CreatedAt,
		ExpiresAt: l.ExpiresAt,
		DaysLeft:  DaysLeft(l, now),
		Activated: l.Activated,
		Blocked:   l.Blocked,
	}, nil
}

// maskKey keeps only the leading characters of a license key for display.
func maskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

func maskDevice(deviceID *string) string {
	if deviceID == nil {
		return ""
	}
	if len(*deviceID) <= 16 {
		return *deviceID
	}
	return (*deviceID)[:16] + "..."
}
