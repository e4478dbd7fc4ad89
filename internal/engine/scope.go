package engine

import (
	"slices"

	"github.com/stewardhq/steward/pkg/schema"
)

// FilterByScope narrows the candidate set before the condition tree runs.
// A nil scope is the identity: the input slice is returned unchanged. With
// a scope, every present sub-filter must be satisfied (set membership).
// Pure, total, order-preserving.
func FilterByScope(records []*schema.Initiative, scope *schema.ScopeFilter) []*schema.Initiative {
	if scope == nil {
		return records
	}

	out := make([]*schema.Initiative, 0, len(records))
	for _, rec := range records {
		if matchesScope(rec, scope) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesScope(rec *schema.Initiative, scope *schema.ScopeFilter) bool {
	if len(scope.AssetClasses) > 0 && !slices.Contains(scope.AssetClasses, rec.AssetClass) {
		return false
	}
	if len(scope.WorkTypes) > 0 && !slices.Contains(scope.WorkTypes, rec.WorkType) {
		return false
	}
	if len(scope.Owners) > 0 && !slices.Contains(scope.Owners, rec.Owner) {
		return false
	}
	return true
}
