package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	content := `
[anthropic]
api_key = "sk-ant-test"

[openai]
api_key = "sk-oai-test"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if creds.Anthropic == nil || creds.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("unexpected anthropic creds: %+v", creds.Anthropic)
	}
	if creds.OpenAI == nil || creds.OpenAI.APIKey != "sk-oai-test" {
		t.Errorf("unexpected openai creds: %+v", creds.OpenAI)
	}
	if creds.Google != nil {
		t.Errorf("expected nil google creds, got %+v", creds.Google)
	}
}

func TestApply_DoesNotOverride(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-existing")
	t.Setenv("GROQ_API_KEY", "")
	os.Unsetenv("GROQ_API_KEY")

	creds := &Credentials{
		Anthropic: &ProviderCreds{APIKey: "sk-from-file"},
		Groq:      &ProviderCreds{APIKey: "gsk-from-file"},
	}
	creds.Apply()

	if got := os.Getenv("ANTHROPIC_API_KEY"); got != "sk-existing" {
		t.Errorf("existing env var was overridden: %q", got)
	}
	if got := os.Getenv("GROQ_API_KEY"); got != "gsk-from-file" {
		t.Errorf("empty env var was not filled: %q", got)
	}
}

func TestApply_Nil(t *testing.T) {
	var creds *Credentials
	creds.Apply() // must not panic
}

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) == 0 {
		t.Fatal("expected at least one standard path")
	}
	if paths[0] != "credentials.toml" {
		t.Errorf("expected working directory first, got %q", paths[0])
	}
}
