package secrets

import "testing"

func TestIsSensitive(t *testing.T) {
	cases := map[string]bool{
		"ANTHROPIC_API_KEY": true,
		"GITHUB_TOKEN":      true,
		"DB_PASSWORD":       true,
		"AWS_SECRET_ACCESS_KEY": true,
		"PATH":              false,
		"HOME":              false,
		"CC_EXECUTOR_SESSION_ID": false,
	}
	for key, want := range cases {
		if got := IsSensitive(key); got != want {
			t.Errorf("IsSensitive(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestStrip(t *testing.T) {
	in := []string{
		"PATH=/usr/bin",
		"OPENAI_API_KEY=sk-secret",
		"HOME=/root",
		"GITHUB_TOKEN=ghp_xxx",
	}
	out := Strip(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries after strip, got %d: %v", len(out), out)
	}
	for _, kv := range out {
		if kv == "OPENAI_API_KEY=sk-secret" || kv == "GITHUB_TOKEN=ghp_xxx" {
			t.Fatalf("sensitive entry survived strip: %s", kv)
		}
	}
}

func TestStripMap(t *testing.T) {
	in := map[string]string{"TOKEN": "x", "SAFE": "y"}
	out := StripMap(in)
	if _, ok := out["TOKEN"]; ok {
		t.Fatal("TOKEN should have been stripped")
	}
	if out["SAFE"] != "y" {
		t.Fatal("non-sensitive key should survive")
	}
}
