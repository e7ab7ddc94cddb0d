package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func RateLimitKey(principal string) string {
	return fmt.Sprintf("ratelimit:%s", principal)
}

// SummaryVersionKey holds the per-tenant generation counter bumped on every
// workflow transition. Summary keys embed it, so a bump orphans stale entries.
func SummaryVersionKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("summary:%s:version", tenantID)
}

func SummaryKey(tenantID uuid.UUID, version int64, from, to time.Time) string {
	return fmt.Sprintf("summary:%s:v%d:%s:%s", tenantID, version,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}
