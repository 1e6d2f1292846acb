package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// buildMatchQuery translates caller full-text syntax into an FTS5 query.
// A leading '+' marks a required term. Required terms are AND-joined;
// when no term is required the optional terms are OR-joined, so a bare
// multi-term query matches documents containing any of its terms. Terms
// are quoted, which disables any other FTS5 operator syntax.
func buildMatchQuery(raw string) (string, error) {
	var required, optional []string
	for _, term := range strings.Fields(raw) {
		req := false
		if strings.HasPrefix(term, "+") {
			req = true
			term = strings.TrimPrefix(term, "+")
		}
		if term == "" {
			continue
		}
		quoted := `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
		if req {
			required = append(required, quoted)
		} else {
			optional = append(optional, quoted)
		}
	}

	switch {
	case len(required) > 0:
		return strings.Join(required, " AND "), nil
	case len(optional) > 0:
		return strings.Join(optional, " OR "), nil
	default:
		return "", fmt.Errorf("empty full-text query: %w", types.ErrInvalidFilter)
	}
}
