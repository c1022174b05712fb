package repo

import (
	"os"
	"strings"
	"testing"
)

func TestConfigRemoteRoundTrip(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetRemote("origin", "https://example.com/twig/alice/repo"); err != nil {
		t.Fatalf("SetRemote: %v", err)
	}

	url, err := r.RemoteURL("origin")
	if err != nil {
		t.Fatalf("RemoteURL: %v", err)
	}
	if url != "https://example.com/twig/alice/repo" {
		t.Fatalf("remote URL = %q, want %q", url, "https://example.com/twig/alice/repo")
	}
}

func TestReadConfigMissingReturnsEmptyConfig(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg == nil {
		t.Fatalf("config is nil")
	}
	if len(cfg.Remotes) != 0 {
		t.Fatalf("expected no remotes, got %d", len(cfg.Remotes))
	}
}

func TestConfigUserAndSigningKey(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetUser("Alice Example"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if err := r.SetSigningKey("/home/alice/.ssh/id_ed25519"); err != nil {
		t.Fatalf("SetSigningKey: %v", err)
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.User.Name != "Alice Example" {
		t.Errorf("User.Name = %q, want %q", cfg.User.Name, "Alice Example")
	}
	if cfg.User.SigningKey != "/home/alice/.ssh/id_ed25519" {
		t.Errorf("User.SigningKey = %q, want key path", cfg.User.SigningKey)
	}

	// The author fallback picks up the configured name.
	if author := r.defaultAuthor(); author != "Alice Example" {
		t.Errorf("defaultAuthor = %q, want configured name", author)
	}
}

func TestConfigDefaultAuthorFallback(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if author := r.defaultAuthor(); author != "unknown" {
		t.Errorf("defaultAuthor = %q, want %q", author, "unknown")
	}
}

func TestConfigWrittenAsTOML(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetUser("alice"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if err := r.SetRemote("origin", "https://example.com/twig/alice/repo"); err != nil {
		t.Fatalf("SetRemote: %v", err)
	}

	raw, err := os.ReadFile(r.configPath())
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, "[user]") {
		t.Errorf("config missing [user] section:\n%s", text)
	}
	if !strings.Contains(text, `name = "alice"`) {
		t.Errorf("config missing user name:\n%s", text)
	}
	if !strings.Contains(text, "[remote.origin]") {
		t.Errorf("config missing [remote.origin] section:\n%s", text)
	}
}

func TestConfigRemoveRemote(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetRemote("origin", "https://example.com/twig/alice/repo"); err != nil {
		t.Fatalf("SetRemote(origin): %v", err)
	}
	if err := r.SetRemote("backup", "https://mirror.example.com/twig/alice/repo"); err != nil {
		t.Fatalf("SetRemote(backup): %v", err)
	}

	names, err := r.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes: %v", err)
	}
	if len(names) != 2 || names[0] != "backup" || names[1] != "origin" {
		t.Fatalf("ListRemotes = %v, want [backup origin]", names)
	}

	if err := r.RemoveRemote("backup"); err != nil {
		t.Fatalf("RemoveRemote: %v", err)
	}
	if _, err := r.RemoteURL("backup"); err == nil {
		t.Fatal("RemoteURL(backup) should fail after removal")
	}

	// Removing a remote that is not configured fails.
	if err := r.RemoveRemote("backup"); err == nil {
		t.Fatal("RemoveRemote(backup) should fail when not configured")
	}
}

func TestConfigRemoteURLUnknown(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.RemoteURL("origin")
	if err == nil {
		t.Fatal("RemoteURL(origin) should fail when not configured")
	}
	if !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("error = %q, want not-configured", err)
	}
}
