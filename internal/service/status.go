package service

import (
	"time"

	"keymint/internal/models"
)

// StatusOf computes the externally reported status of a license at the
// given instant. This is the only place status is derived; list filtering,
// stats, export and info must all agree with it.
//
// Priority order: blocked > expired > (activated ? active : pending).
func StatusOf(l *models.License, now time.Time) models.LicenseStatus {
	switch {
	case l.Blocked:
		return models.StatusBlocked
	case l.ExpiresAt != nil && l.ExpiresAt.Before(now):
		return models.StatusExpired
	case l.Activated:
		return models.StatusActive
	default:
		return models.StatusPending
	}
}

// DaysLeft returns the whole days until expiry, clamped to zero. Nil for
// lifetime licenses.
func DaysLeft(l *models.License, now time.Time) *int {
	if l.ExpiresAt == nil {
		return nil
	}
	days := int(l.ExpiresAt.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}
