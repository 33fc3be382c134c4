package validators

import (
	"net/http"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
)

// ParseQueryString returns a trimmed query parameter, rejecting values longer
// than maxLen characters.
func ParseQueryString(r *http.Request, key string, maxLen int) (string, error) {
	raw := SanitizeString(r.URL.Query().Get(key), 0)
	if maxLen > 0 && utf8.RuneCountInString(raw) > maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter too long").WithDetails(map[string]any{"field": key, "max": maxLen})
	}
	return raw, nil
}
