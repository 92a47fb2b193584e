// Package assistant – vault_test.go exercises the encrypted credential vault.
package assistant

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVaultCreateSetGet(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".quill.vault")
	v := NewVault(path)
	if v.Exists() {
		t.Fatal("vault must not exist before Create")
	}

	if err := v.Create("correct horse"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !v.IsUnlocked() {
		t.Fatal("freshly created vault must be unlocked")
	}

	if err := v.Set("openai_api_key", "sk-123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := v.Get("openai_api_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "sk-123" {
		t.Errorf("got %q, want sk-123", got)
	}

	if _, err := v.Get("missing"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestVaultUnlockAfterReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".quill.vault")
	v := NewVault(path)
	if err := v.Create("correct horse"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.Set("gemini_api_key", "gm-456"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened := NewVault(path)
	if err := reopened.Unlock("correct horse"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	got, err := reopened.Get("gemini_api_key")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got != "gm-456" {
		t.Errorf("got %q, want gm-456", got)
	}
}

func TestVaultWrongPassword(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".quill.vault")
	v := NewVault(path)
	if err := v.Create("correct horse"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.Set("openai_api_key", "sk-123"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened := NewVault(path)
	if err := reopened.Unlock("battery staple"); err == nil {
		t.Fatal("expected an error for the wrong master password")
	}
	if reopened.IsUnlocked() {
		t.Error("failed unlock must leave the vault locked")
	}
}

func TestVaultLockedOperationsFail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".quill.vault")
	v := NewVault(path)
	if err := v.Create("correct horse"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.Set("openai_api_key", "sk-123"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v.Lock()
	if v.IsUnlocked() {
		t.Fatal("vault still unlocked after Lock")
	}
	if _, err := v.Get("openai_api_key"); err == nil {
		t.Error("get on a locked vault must fail")
	}
	if err := v.Set("other", "x"); err == nil {
		t.Error("set on a locked vault must fail")
	}
}

func TestVaultFileDoesNotLeakPlaintext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".quill.vault")
	v := NewVault(path)
	if err := v.Create("correct horse"); err != nil {
		t.Fatalf("create: %v", err)
	}
	secret := "sk-very-secret-value"
	if err := v.Set("openai_api_key", secret); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read vault file: %v", err)
	}
	if strings.Contains(string(raw), secret) {
		t.Error("secret stored in plaintext")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat vault file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("got mode %04o, want 0600", perm)
	}
}
