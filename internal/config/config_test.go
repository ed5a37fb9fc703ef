package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/choplin/dirsim/internal/database"
	"github.com/choplin/dirsim/internal/directory"
)

var envKeys = []string{
	"DIRSIM_STRUCTURAL_ATTRIBUTES",
	"DIRSIM_VIRTUAL_ATTRIBUTES",
	"DIRSIM_REFERENCE_ATTRIBUTES",
	"DIRSIM_ANR_ATTRIBUTES",
	"DIRSIM_STORAGE",
	"DIRSIM_DIRECTORIES",
}

// clearEnv unsets every engine variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestGetDataDirWithExplicitEnv(t *testing.T) {
	tmpDir := t.TempDir()
	customDir := filepath.Join(tmpDir, "custom")

	t.Setenv("DIRSIM_DIR", customDir)
	t.Setenv("XDG_DATA_HOME", "")

	got := GetDataDir()
	if got != customDir {
		t.Fatalf("expected %q, got %q", customDir, got)
	}
}

func TestGetDataDirFallsBackToXDG(t *testing.T) {
	tmpDir := t.TempDir()
	xdgDir := filepath.Join(tmpDir, "xdg")

	t.Setenv("DIRSIM_DIR", "")
	t.Setenv("XDG_DATA_HOME", xdgDir)

	got := GetDataDir()
	want := filepath.Join(xdgDir, "dirsim")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGetDirectoryPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("DIRSIM_DIR", tmpDir)

	if got, want := GetDirectoriesDir(), filepath.Join(tmpDir, "directories"); got != want {
		t.Fatalf("GetDirectoriesDir expected %q, got %q", want, got)
	}
	if got, want := GetDirectoryPath("corp"), filepath.Join(tmpDir, "directories", "corp.db"); got != want {
		t.Fatalf("GetDirectoryPath expected %q, got %q", want, got)
	}
}

func TestSanitizeName(t *testing.T) {
	input := "../corp/ad.local:389"
	got := SanitizeName(input)
	if strings.ContainsAny(got, "/.:\\") {
		t.Fatalf("expected separators to be replaced, got %q", got)
	}
	if got := SanitizeName("  "); got != "default" {
		t.Fatalf("expected blank name to become default, got %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := directory.DefaultConfig()
	if strings.Join(cfg.Engine.StructuralAttributes, ",") != strings.Join(want.StructuralAttributes, ",") {
		t.Fatalf("unexpected structural attributes %v", cfg.Engine.StructuralAttributes)
	}
	if len(cfg.Engine.VirtualAttributes) != 1 || cfg.Engine.VirtualAttributes[0] != want.VirtualAttributes[0] {
		t.Fatalf("unexpected virtual attributes %+v", cfg.Engine.VirtualAttributes)
	}
	if cfg.StorageFor("anything") != database.StorageMemory {
		t.Fatalf("expected memory storage by default, got %q", cfg.StorageFor("anything"))
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"DIRSIM_STRUCTURAL_ATTRIBUTES=objectClass, objectCategory",
		"DIRSIM_VIRTUAL_ATTRIBUTES=member:memberOf:rename,manager:directReports",
		"DIRSIM_REFERENCE_ATTRIBUTES=secretary",
		"DIRSIM_ANR_ATTRIBUTES=cn,uid",
		"DIRSIM_STORAGE=file",
		"DIRSIM_DIRECTORIES=scratch=memory, archive = file",
	}, "\n")
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := strings.Join(cfg.Engine.StructuralAttributes, ","); got != "objectClass,objectCategory" {
		t.Fatalf("unexpected structural attributes %q", got)
	}
	wantPairs := []directory.VirtualAttribute{
		{Forward: "member", Reverse: "memberOf", RewriteOnRename: true},
		{Forward: "manager", Reverse: "directReports"},
	}
	if len(cfg.Engine.VirtualAttributes) != len(wantPairs) {
		t.Fatalf("expected %d virtual attributes, got %+v", len(wantPairs), cfg.Engine.VirtualAttributes)
	}
	for i, want := range wantPairs {
		if cfg.Engine.VirtualAttributes[i] != want {
			t.Fatalf("virtual attribute %d: expected %+v, got %+v", i, want, cfg.Engine.VirtualAttributes[i])
		}
	}
	if got := strings.Join(cfg.Engine.ReferenceAttributes, ","); got != "secretary" {
		t.Fatalf("unexpected reference attributes %q", got)
	}
	if got := strings.Join(cfg.Engine.ANRAttributes, ","); got != "cn,uid" {
		t.Fatalf("unexpected ANR attributes %q", got)
	}
	if cfg.StorageFor("scratch") != database.StorageMemory {
		t.Fatalf("expected scratch to use memory storage")
	}
	if cfg.StorageFor("archive") != database.StorageFile {
		t.Fatalf("expected archive to use file storage")
	}
	if cfg.StorageFor("other") != database.StorageFile {
		t.Fatalf("expected the default storage to be file")
	}
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIRSIM_STORAGE", "memory")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("DIRSIM_STORAGE=file\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultStorage != database.StorageMemory {
		t.Fatalf("expected environment to win, got %q", cfg.DefaultStorage)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DIRSIM_STORAGE":            "tape",
		"DIRSIM_DIRECTORIES":        "corp",
		"DIRSIM_VIRTUAL_ATTRIBUTES": "member",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected %s=%q to be rejected", key, value)
			}
		})
	}

	t.Run("missing env file", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
			t.Fatalf("expected missing env file to fail")
		}
	})
}
