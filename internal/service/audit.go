package service

import (
	"context"
	"log/slog"

	"keymint/internal/models"
	"keymint/internal/store"
)

// AsyncAudit mirrors the entry to the structured log and appends it to the
// audit trail in the background with a detached context, so a caller
// abandoning the request cannot lose the entry.
func AsyncAudit(auditStore store.AuditStore, entry *models.AuditEntry) {
	slog.Info("Audit",
		"action", entry.Action,
		"license_key", entry.LicenseKey,
		"hwid", entry.DeviceID,
		"ip", entry.Origin,
		"details", entry.Details,
	)

	go func() {
		if err := auditStore.Append(context.Background(), entry); err != nil {
			slog.Error("Failed to append audit entry", "error", err, "action", entry.Action)
		}
	}()
}
