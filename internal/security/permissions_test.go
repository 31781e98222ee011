// internal/security/permissions_test.go
package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateDirectoryPermissions_Mode0700(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0700); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}

	if err := ValidateDirectoryPermissions(dir); err != nil {
		t.Errorf("expected no error for dir with 0700 perms, got: %v", err)
	}
}

func TestValidateDirectoryPermissions_WorldWritable(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0777); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}

	if err := ValidateDirectoryPermissions(dir); err == nil {
		t.Error("expected error for world-writable directory")
	}
}

func TestValidateDirectoryPermissions_StickyWorldWritable(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0777|os.ModeSticky); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}

	if err := ValidateDirectoryPermissions(dir); err != nil {
		t.Errorf("sticky world-writable dir (like /tmp) should pass, got: %v", err)
	}
}

func TestValidateDirectoryPermissions_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := ValidateDirectoryPermissions(file); err == nil {
		t.Error("expected error for a regular file")
	}
}

func TestValidateDirectoryPermissions_Missing(t *testing.T) {
	if err := ValidateDirectoryPermissions(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestEnsureWorkDir_Creates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work", "renders")

	if err := EnsureWorkDir(dir); err != nil {
		t.Fatalf("EnsureWorkDir() error = %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("work dir not created: %v", err)
	}
	if info.Mode().Perm()&0077 != 0 {
		t.Errorf("work dir mode = %04o, want 0700", info.Mode().Perm())
	}
}
