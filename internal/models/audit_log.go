package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the configuration boundary.
const (
	AuditProviderCreated      = "provider.created"
	AuditProviderUpdated      = "provider.updated"
	AuditProviderDeleted      = "provider.deleted"
	AuditProviderSecretRotate = "provider.secret_rotated"
	AuditProviderTested       = "provider.connection_tested"
	AuditRuleCreated          = "rule.created"
	AuditRuleUpdated          = "rule.updated"
	AuditRuleDeleted          = "rule.deleted"
	AuditModelUpserted        = "model.upserted"
	AuditModelDeleted         = "model.deleted"
	AuditSafetyPolicyChanged  = "safety_policy.changed"
	AuditFallbackChanged      = "fallback_policy.changed"
)

// AuditLog is one append-only record per configuration mutation or
// security-relevant event. Never mutated or deleted.
type AuditLog struct {
	ID          uuid.UUID  `db:"id"`
	WorkspaceID uuid.UUID  `db:"workspace_id"`
	Actor       string     `db:"actor"`
	Action      string     `db:"action"`
	EntityType  string     `db:"entity_type"`
	EntityID    *uuid.UUID `db:"entity_id"`
	Metadata    JSONB      `db:"metadata"`
	IPAddress   string     `db:"ip_address"`
	UserAgent   string     `db:"user_agent"`
	CreatedAt   time.Time  `db:"created_at"`
}
