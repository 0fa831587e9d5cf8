// Package filter trims captured traffic down to API calls worth importing and
// redacts secrets from execution results before they are stored.
package filter

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/pkg/types"
)

// FilterConfig is an alias of config.FilterConfig.
type FilterConfig = config.FilterConfig

// Reason says why an exchange was dropped.
type Reason string

const (
	ReasonPreflight   Reason = "preflight"
	ReasonExtension   Reason = "extension"
	ReasonContentType Reason = "content_type"
	ReasonPath        Reason = "path"
	ReasonRetry       Reason = "retry"
	ReasonDuplicate   Reason = "duplicate"
)

// Result is the outcome of filtering one capture.
type Result struct {
	Kept    []types.Exchange
	Dropped map[Reason]int
}

// Apply filters exchanges and folds repeated calls into one.
func Apply(exchanges []types.Exchange, cfg FilterConfig) []types.Exchange {
	return Run(exchanges, cfg).Kept
}

// Run is Apply with per-reason drop counts.
func Run(exchanges []types.Exchange, cfg FilterConfig) Result {
	res := Result{Dropped: map[Reason]int{}}
	kept := make([]types.Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		if reason, drop := dropReason(ex, cfg); drop {
			res.Dropped[reason]++
			continue
		}
		kept = append(kept, ex)
	}

	before := len(kept)
	kept = removeRetried5xx(kept)
	if n := before - len(kept); n > 0 {
		res.Dropped[ReasonRetry] += n
	}
	before = len(kept)
	kept = foldRepeats(kept)
	if n := before - len(kept); n > 0 {
		res.Dropped[ReasonDuplicate] += n
	}
	res.Kept = kept
	return res
}

func dropReason(ex types.Exchange, cfg FilterConfig) (Reason, bool) {
	switch {
	case strings.EqualFold(ex.Method, "OPTIONS"):
		return ReasonPreflight, true
	case hasIgnoredExtension(ex.Path, cfg.IgnoreExtensions):
		return ReasonExtension, true
	case matchesContentType(ex.ResponseContentType, cfg.IgnoreContentTypes):
		return ReasonContentType, true
	case hasIgnoredPath(ex.Path, cfg.IgnorePaths):
		return ReasonPath, true
	}
	return "", false
}

func hasIgnoredExtension(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(strings.TrimSpace(e)) == ext {
			return true
		}
	}
	return false
}

func hasIgnoredPath(p string, prefixes []string) bool {
	for _, pref := range prefixes {
		if pref = strings.TrimSpace(pref); pref != "" && strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

// matchesContentType supports exact types and "type/*" wildcards.
func matchesContentType(ct string, ignores []string) bool {
	base, _, _ := strings.Cut(ct, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		return false
	}
	for _, p := range ignores {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(base, prefix) {
				return true
			}
			continue
		}
		if base == p {
			return true
		}
	}
	return false
}

// removeRetried5xx keeps only the first of back-to-back 5xx answers to the
// same call.
func removeRetried5xx(in []types.Exchange) []types.Exchange {
	out := make([]types.Exchange, 0, len(in))
	var prevKey string
	var prevFailed bool
	for _, ex := range in {
		key := callKey(ex)
		failed := is5xx(ex.StatusCode)
		if prevFailed && failed && key == prevKey {
			continue
		}
		out = append(out, ex)
		prevKey, prevFailed = key, failed
	}
	return out
}

// foldRepeats merges calls with the same method, path and query into the
// first occurrence. When the first one did not succeed and a later one did,
// the successful exchange becomes the sample so imports carry a usable
// response body.
func foldRepeats(in []types.Exchange) []types.Exchange {
	out := make([]types.Exchange, 0, len(in))
	index := make(map[string]int, len(in))
	for _, ex := range in {
		count := max(ex.CallCount, 1)
		key := callKey(ex)
		idx, seen := index[key]
		if !seen {
			ex.CallCount = count
			index[key] = len(out)
			out = append(out, ex)
			continue
		}
		total := out[idx].CallCount + count
		if !isSuccess(out[idx].StatusCode) && isSuccess(ex.StatusCode) {
			seq := out[idx].Seq
			out[idx] = ex
			out[idx].Seq = seq
		}
		out[idx].CallCount = total
	}
	return out
}

func isSuccess(code int) bool { return code >= 200 && code <= 299 }

func is5xx(code int) bool { return code >= 500 && code <= 599 }

func callKey(ex types.Exchange) string {
	return strings.ToUpper(ex.Method) + " " + ex.Path + "?" + canonicalQuery(ex.QueryParams)
}

func canonicalQuery(params map[string][]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := url.Values{}
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, v := range values {
			vals.Add(k, v)
		}
	}
	return vals.Encode()
}
