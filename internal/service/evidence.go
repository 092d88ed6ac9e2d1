package service

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

// NormalizeEvidenceURL canonicalizes a proof link so that trivially different
// spellings of the same page collide on the evidence uniqueness key. Query
// parameters survive only when listed in keepParams.
func NormalizeEvidenceURL(raw string, keepParams []string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}

	normalized := scheme + "://" + host + canonicalPath(u.Path)
	if query := keptQuery(u.Query(), keepParams); query != "" {
		normalized += "?" + query
	}
	return normalized, true
}

// canonicalPath decodes, resolves dot segments and re-escapes the path, so
// "/%61lice/./status/1/" and "/alice/status/1" are the same key.
func canonicalPath(decoded string) string {
	if decoded == "" {
		return ""
	}
	cleaned := path.Clean("/" + decoded)
	return strings.TrimRight((&url.URL{Path: cleaned}).EscapedPath(), "/")
}

// CheckEvidence applies the task's evidence rules in order and returns the
// normalized URL, or the first failing reason code.
func CheckEvidence(raw string, task *models.Task) (string, types.ReasonCode) {
	normalized, ok := NormalizeEvidenceURL(raw, nil)
	if !ok {
		return "", types.ReasonInvalidEvidenceURL
	}
	if task.RequireHTTPS && !strings.HasPrefix(normalized, "https://") {
		return "", types.ReasonEvidenceHTTPSRequired
	}
	if len(task.AllowedDomains) > 0 && !domainAllowed(hostOf(normalized), task.AllowedDomains) {
		return "", types.ReasonEvidenceDomainNotAllowed
	}
	if task.MinURLLength > 0 && len(normalized) < task.MinURLLength {
		return "", types.ReasonEvidenceTooShort
	}
	return normalized, ""
}

// domainAllowed matches the host against the allow-list, accepting subdomains
func domainAllowed(host string, allowed []string) bool {
	host = strings.TrimPrefix(host, "www.")
	for _, d := range allowed {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func hostOf(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
}

func keptQuery(values url.Values, keep []string) string {
	if len(keep) == 0 || len(values) == 0 {
		return ""
	}
	kept := url.Values{}
	for _, k := range keep {
		if v, ok := values[k]; ok {
			kept[k] = v
		}
	}
	if len(kept) == 0 {
		return ""
	}
	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range kept[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
