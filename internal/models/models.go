package models

import "time"

// LicenseClass is the entitlement tier of a license. It fixes the validity
// duration at generation time and the key prefix.
type LicenseClass string

const (
	ClassTrial1Day  LicenseClass = "trial_1day"
	ClassTrial3Days LicenseClass = "trial_3days"
	ClassWeekly     LicenseClass = "weekly"
	ClassMonthly    LicenseClass = "monthly"
	ClassYearly     LicenseClass = "yearly"
	ClassLifetime   LicenseClass = "lifetime"
)

// classDurations maps each class to its validity in days. Lifetime has no
// entry: a lifetime license never expires.
var classDurations = map[LicenseClass]int{
	ClassTrial1Day:  1,
	ClassTrial3Days: 3,
	ClassWeekly:     7,
	ClassMonthly:    30,
	ClassYearly:     365,
}

var classPrefixes = map[LicenseClass]string{
	ClassTrial1Day:  "KM-T1D",
	ClassTrial3Days: "KM-T3D",
	ClassWeekly:     "KM-WKY",
	ClassMonthly:    "KM-MTH",
	ClassYearly:     "KM-YRL",
	ClassLifetime:   "KM-LTM",
}

// Valid reports whether c is a known license class.
func (c LicenseClass) Valid() bool {
	_, ok := classPrefixes[c]
	return ok
}

// Prefix returns the key prefix for the class, falling back to the bare
// product tag for unknown classes.
func (c LicenseClass) Prefix() string {
	if p, ok := classPrefixes[c]; ok {
		return p
	}
	return "KM"
}

// ExpiryFrom returns the expiry for a license of this class created at t,
// or nil for lifetime.
func (c LicenseClass) ExpiryFrom(t time.Time) *time.Time {
	days, ok := classDurations[c]
	if !ok {
		return nil
	}
	exp := t.AddDate(0, 0, days)
	return &exp
}

// LicenseStatus is the computed, never-stored status of a license.
// Priority: blocked > expired > (activated ? active : pending).
type LicenseStatus string

const (
	StatusActive  LicenseStatus = "active"
	StatusBlocked LicenseStatus = "blocked"
	StatusExpired LicenseStatus = "expired"
	StatusPending LicenseStatus = "pending"
)

type License struct {
	Key              string       `json:"key"`
	DeviceID         *string      `json:"hwid,omitempty"`
	Class            LicenseClass `json:"type"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	Activated        bool         `json:"activated"`
	Blocked          bool         `json:"blocked"`
	ActivatedAt      *time.Time   `json:"activation_date,omitempty"`
	ActivationOrigin *string      `json:"activation_ip,omitempty"`
	Notes            string       `json:"notes,omitempty"`
}

// AuditEntry is an immutable record of a state-changing or
// security-relevant event. Appended on every such event, never mutated.
type AuditEntry struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	LicenseKey *string   `json:"license_key,omitempty"`
	DeviceID   *string   `json:"hwid,omitempty"`
	Origin     string    `json:"ip"`
	Details    string    `json:"details,omitempty"`
}

// Audit action names. These are stable identifiers filtered on by the
// admin logs endpoint.
const (
	ActionActivationSuccess  = "ACTIVATION_SUCCESS"
	ActionActivationFailed   = "ACTIVATION_FAILED"
	ActionActivationBlocked  = "ACTIVATION_BLOCKED"
	ActionActivationExpired  = "ACTIVATION_EXPIRED"
	ActionActivationMismatch = "ACTIVATION_HWID_MISMATCH"
	ActionKeysGenerated      = "KEYS_GENERATED"
	ActionKeyBlocked         = "KEY_BLOCKED"
	ActionKeyUnblocked       = "KEY_UNBLOCKED"
	ActionHWIDReset          = "HWID_RESET"
	ActionKeyExtended        = "KEY_EXTENDED"
	ActionKeyDeleted         = "KEY_DELETED"
	ActionUnauthorized       = "UNAUTHORIZED_ACCESS"
	ActionRateLimited        = "RATE_LIMIT_EXCEEDED"
)

// ListFilter narrows the admin license listing. Status is matched against
// the computed status, not a stored column.
type ListFilter struct {
	Class  LicenseClass
	Status LicenseStatus
	Search string
	Limit  int
}

// Stats is the aggregate license count snapshot served by /admin/stats.
type Stats struct {
	Total          int            `json:"total"`
	Activated      int            `json:"activated"`
	Blocked        int            `json:"blocked"`
	Pending        int            `json:"pending"`
	Expired        int            `json:"expired"`
	ByClass        map[string]int `json:"by_type"`
	Activations24h int            `json:"activations_24h"`
	Activations7d  int            `json:"activations_7d"`
}

// ActivationPoint is one day of the trailing activation series.
type ActivationPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
