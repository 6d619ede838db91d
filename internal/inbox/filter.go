// Package inbox maintains the per-session working set of interactions: a
// filtered, paginated view of the store kept live by batched changefeed
// envelopes, under a bounded memory footprint.
package inbox

import (
	"strings"
	"time"

	"github.com/replyhub/backend/internal/models"
	"gorm.io/gorm"
)

// PageSize is the fixed page size for inbox fetches
const PageSize = 50

// FilterAll is the wildcard value meaning "no constraint on that field"
const FilterAll = "all"

// Filter is the client-held query intent. Zero values and "all" mean
// unconstrained; DateFrom/DateTo are inclusive and independently optional.
type Filter struct {
	Platform  string     `json:"platform" form:"platform"`
	Status    string     `json:"status" form:"status"`
	Sentiment string     `json:"sentiment" form:"sentiment"`
	Search    string     `json:"search" form:"search"`
	DateFrom  *time.Time `json:"date_from" form:"date_from" time_format:"2006-01-02"`
	DateTo    *time.Time `json:"date_to" form:"date_to" time_format:"2006-01-02"`
}

// constrained reports whether v names a concrete enum value rather than
// the wildcard
func constrained(v string) bool {
	return v != "" && v != FilterAll
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters in user search text
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Apply translates the filter into store query constraints, scoped to one
// user and intersected with the connected-platforms set. Same filter and
// same connected set always produce the same query.
//
// An empty connected set yields a query guaranteed to return zero rows:
// with nothing connected, no cross-platform data may ever surface.
func (f Filter) Apply(db *gorm.DB, userID string, connected []models.Platform) *gorm.DB {
	q := db.Model(&models.Interaction{}).Where("user_id = ?", userID)

	if len(connected) == 0 {
		return q.Where("1 = 0")
	}
	q = q.Where("platform IN ?", connected)

	if constrained(f.Platform) {
		q = q.Where("platform = ?", f.Platform)
	}
	if constrained(f.Status) {
		q = q.Where("status = ?", f.Status)
	}
	if constrained(f.Sentiment) {
		q = q.Where("sentiment = ?", f.Sentiment)
	}

	// Substring match, case-insensitive, over content only. The search text
	// is literal: a "%" or "_" in it matches itself, not the LIKE wildcard.
	if f.Search != "" {
		q = q.Where(`LOWER(content) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(f.Search))+"%")
	}

	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at <= ?", *f.DateTo)
	}

	return q
}
