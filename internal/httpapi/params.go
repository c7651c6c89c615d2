package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// extractParams reads request parameters from whichever transport the
// caller used. Bot API clients are wildly inconsistent here: JSON bodies,
// form posts, raw query strings in the body, and plain GET queries all
// occur in the wild and all must work.
func extractParams(r *http.Request) map[string]any {
	if r.Method != http.MethodPost {
		return normalizeValues(r.URL.Query())
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		return decodeJSONBody(r.Body)

	case strings.Contains(contentType, "application/x-www-form-urlencoded"),
		strings.Contains(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			if err := r.ParseForm(); err != nil {
				return map[string]any{}
			}
		}
		return normalizeValues(r.Form)

	default:
		raw, err := io.ReadAll(r.Body)
		if err != nil || len(raw) == 0 {
			return map[string]any{}
		}
		if params := tryJSON(raw); params != nil {
			return params
		}
		if values, err := url.ParseQuery(string(raw)); err == nil {
			return normalizeValues(values)
		}
		return map[string]any{}
	}
}

func decodeJSONBody(body io.Reader) map[string]any {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil || params == nil {
		return map[string]any{}
	}
	return params
}

func tryJSON(raw []byte) map[string]any {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil
	}
	return params
}

// normalizeValues collapses single-element value lists to the scalar, the
// shape the dispatcher's coercion helpers expect.
func normalizeValues(values url.Values) map[string]any {
	params := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			params[key] = vals[0]
		} else {
			params[key] = vals
		}
	}
	return params
}
