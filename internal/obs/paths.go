package obs

import "strings"

// CanonicalPath collapses resource identifiers embedded in a URL path to
// ":id" so metric labels stay low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/loans/"); ok {
		switch {
		case rest == "":
			return path
		case strings.HasSuffix(rest, "/payments") && strings.Count(rest, "/") == 1:
			return "/api/v1/loans/:id/payments"
		case strings.HasSuffix(rest, "/ledger") && strings.Count(rest, "/") == 1:
			return "/api/v1/loans/:id/ledger"
		case !strings.Contains(rest, "/"):
			return "/api/v1/loans/:id"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/customers/"); ok {
		if strings.HasSuffix(rest, "/overview") && strings.Count(rest, "/") == 1 {
			return "/api/v1/customers/:id/overview"
		}
	}
	return path
}
