package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenLogoBridge/internal/auth"
	"github.com/KevinKickass/OpenLogoBridge/internal/config"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resolveFamily = "0BA8"
	resolveJSON = false
	hashConfigPath = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestResolveTable(t *testing.T) {
	out, err := runRoot(t, "resolve", "--family", "0BA7", "AI3", "q2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "AI3") || !strings.Contains(out, "930") {
		t.Errorf("missing AI3 row:\n%s", out)
	}
	if !strings.Contains(out, "Q2") || !strings.Contains(out, "942") {
		t.Errorf("missing Q2 row:\n%s", out)
	}
}

func TestResolveJSON(t *testing.T) {
	out, err := runRoot(t, "resolve", "--json", "NQ9", "VB983.7")
	if err != nil {
		t.Fatal(err)
	}

	var got []resolvedBlock
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("%v\n%s", err, out)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	if got[0].ByteAddress != 1391 || got[0].BitIndex != 0 || got[0].Class != "digital" {
		t.Errorf("NQ9 = %+v", got[0])
	}
	if got[1].ByteAddress != 983 || got[1].BitIndex != 7 {
		t.Errorf("VB983.7 = %+v", got[1])
	}
}

func TestResolveReportsFailures(t *testing.T) {
	out, err := runRoot(t, "resolve", "AI1", "XX1")
	if err == nil {
		t.Fatal("expected error for XX1")
	}
	if !strings.Contains(out, "XX1") {
		t.Errorf("failure not listed:\n%s", out)
	}
}

func TestResolveUnknownFamily(t *testing.T) {
	if _, err := runRoot(t, "resolve", "--family", "0BA6", "AI1"); err == nil {
		t.Error("expected unknown family error")
	}
}

func TestHashPasswordUsesConfiguredCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "auth:\n  argon2:\n    memory_kib: 4096\n    iterations: 2\n    parallelism: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runRoot(t, "hash-password", "--config", path, "pw-12345678")
	if err != nil {
		t.Fatal(err)
	}
	hash := strings.TrimSpace(out)
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=4096,t=2,p=1$") {
		t.Fatalf("hash = %s", hash)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	h := auth.NewPasswordHasher(cfg.Auth.Argon2)
	if ok, err := h.VerifyPassword("pw-12345678", hash); err != nil || !ok {
		t.Errorf("verify = %v, %v", ok, err)
	}
	if h.NeedsRehash(hash) {
		t.Error("hash-password and the verifier disagree on the cost")
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := runRoot(t, "hash-password", "short"); err == nil {
		t.Error("expected error for short password")
	}
}
