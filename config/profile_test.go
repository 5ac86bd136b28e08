package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	data := `
core-switch:
  host: 10.0.0.1
  port: 2323
  user: admin
  prompt: '#\s*$'
  socket_timeout: 5s
  prune_ctrl_seq: true
edge:
  host: edge.example.com
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	p, err := profiles.Lookup("core-switch")
	if err != nil {
		t.Fatal(err)
	}
	if p.Host != "10.0.0.1" || p.Port != 2323 || p.User != "admin" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.SocketTimeout.Std() != 5*time.Second {
		t.Fatalf("socket timeout %v", p.SocketTimeout)
	}
	if !p.PruneControlSequences {
		t.Fatal("prune flag lost")
	}

	if _, err := profiles.Lookup("nope"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestLoadProfilesMissingFile(t *testing.T) {
	profiles, err := LoadProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("expected empty profiles, got %v", profiles)
	}
}

func TestLoadProfilesBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfiles(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProfilesFileEnvOverride(t *testing.T) {
	t.Setenv("TETHER_PROFILES", "/opt/jobs/switches.yaml")
	if got := ProfilesFile(); got != "/opt/jobs/switches.yaml" {
		t.Fatalf("ProfilesFile() = %q", got)
	}
}

func TestProfilesFileDefaultLocation(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("user config dir layout is platform specific")
	}
	t.Setenv("TETHER_PROFILES", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ProfilesFile(); got != "/tmp/xdg/tether/profiles.yaml" {
		t.Fatalf("ProfilesFile() = %q", got)
	}
}
