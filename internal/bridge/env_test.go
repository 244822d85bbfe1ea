package bridge

import (
	"strings"
	"testing"
)

func TestBuildEnv(t *testing.T) {
	parent := map[string]string{
		"PATH":          "/usr/bin",
		"HOME":          "/home/me",
		"AWS_SECRET":    "should-not-leak",
		"OBSIDIAN_HOST": "http://parent:1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := parent[k]
		return v, ok
	}
	p := Provider{
		Env:         map[string]string{"OBSIDIAN_HOST": "http://localhost:27124", "OBSIDIAN_API_KEY": "abcd1234"},
		Passthrough: []string{"PATH", "HOME", "OBSIDIAN_HOST", "NOT_SET"},
	}

	env, keys := buildEnv(p, lookup)

	wantKeys := "HOME,OBSIDIAN_API_KEY,OBSIDIAN_HOST,PATH"
	if got := strings.Join(keys, ","); got != wantKeys {
		t.Errorf("keys = %s, want %s", got, wantKeys)
	}
	joined := strings.Join(env, "\n")
	if strings.Contains(joined, "AWS_SECRET") {
		t.Error("unlisted parent variable leaked")
	}
	if !strings.Contains(joined, "OBSIDIAN_HOST=http://localhost:27124") {
		t.Errorf("configured value should win over passthrough:\n%s", joined)
	}
	if !strings.Contains(joined, "PATH=/usr/bin") {
		t.Errorf("passthrough PATH missing:\n%s", joined)
	}
}

func TestBuildEnv_NilLookup(t *testing.T) {
	env, _ := buildEnv(Provider{Passthrough: []string{"PATH"}, Env: map[string]string{"A": "1"}}, nil)
	if len(env) != 1 || env[0] != "A=1" {
		t.Errorf("env = %v, want [A=1]", env)
	}
}

func TestIsSecretName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"NOTION_TOKEN", true},
		{"OBSIDIAN_API_KEY", true},
		{"db_password", true},
		{"CLIENT_SECRET", true},
		{"OBSIDIAN_HOST", false},
		{"PATH", false},
	}
	for _, tt := range tests {
		if got := isSecretName(tt.name); got != tt.want {
			t.Errorf("isSecretName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRedactor(t *testing.T) {
	r := newRedactor(Provider{Env: map[string]string{
		"NOTION_TOKEN":  "ntn_secret_value",
		"SHORT_KEY":     "ab",
		"OBSIDIAN_HOST": "localhost",
	}})

	got := r.String("auth ntn_secret_value failed on localhost ab")
	if strings.Contains(got, "ntn_secret_value") {
		t.Errorf("secret not masked: %s", got)
	}
	if !strings.Contains(got, "localhost") {
		t.Errorf("non-secret value masked: %s", got)
	}
	if !strings.HasSuffix(got, " ab") {
		t.Errorf("short values must not be masked: %s", got)
	}

	argv := r.Strings([]string{"--token", "ntn_secret_value"})
	if argv[1] != redacted {
		t.Errorf("argv = %v", argv)
	}
}

func TestUnknownOperationMessage(t *testing.T) {
	got := unknownOperationMessage("x", []string{"a", "b-c"})
	want := "Tool 'x' not found. Available tools: ['a','b-c']"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if got := unknownOperationMessage("x", nil); got != "Tool 'x' not found. Available tools: []" {
		t.Errorf("empty list: %s", got)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 10}
	tb.WriteLine("hello")
	tb.WriteLine("world!")
	if got := tb.String(); got != "llo\nworld!" {
		t.Errorf("tail = %q", got)
	}
}
