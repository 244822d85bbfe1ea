package bridge

import (
	"sort"
	"strings"
)

// buildEnv constructs the provider's environment from the explicit
// allow-list only: the configured Env values, plus every Passthrough name
// that is set in the parent. Nothing else from the parent leaks through.
// Configured values win over passthrough. The returned keys are sorted
// and safe to log; values are not.
func buildEnv(p Provider, lookup func(string) (string, bool)) (env []string, keys []string) {
	vars := make(map[string]string, len(p.Env)+len(p.Passthrough))
	for _, name := range p.Passthrough {
		if lookup == nil {
			break
		}
		if v, ok := lookup(name); ok {
			vars[name] = v
		}
	}
	for k, v := range p.Env {
		vars[k] = v
	}

	keys = make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env = make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env, keys
}

// secretMarkers are substrings of variable names whose values must never
// show up in logs.
var secretMarkers = []string{"TOKEN", "KEY", "SECRET", "PASSWORD", "CREDENTIAL"}

func isSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, m := range secretMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

const redacted = "***REDACTED***"

// redactor masks secret values of a provider's environment in text that
// is about to be logged (argv, stderr lines, error messages).
type redactor struct {
	literals []string
}

func newRedactor(p Provider) redactor {
	var r redactor
	for k, v := range p.Env {
		// Very short values would mask ordinary words.
		if isSecretName(k) && len(v) >= 4 {
			r.literals = append(r.literals, v)
		}
	}
	// Longest first so a secret that contains another is masked whole.
	sort.Slice(r.literals, func(i, j int) bool { return len(r.literals[i]) > len(r.literals[j]) })
	return r
}

func (r redactor) String(s string) string {
	for _, lit := range r.literals {
		s = strings.ReplaceAll(s, lit, redacted)
	}
	return s
}

func (r redactor) Strings(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.String(v)
	}
	return out
}
