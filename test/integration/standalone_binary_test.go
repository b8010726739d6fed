package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	buildDir := t.TempDir()
	binaryPath := filepath.Join(buildDir, "ledgersweep")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/ledgersweep")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "ledgersweep")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read built binary: %v", err)
	}
	if err := os.WriteFile(copiedBinary, data, 0o755); err != nil {
		t.Fatalf("write copied binary: %v", err)
	}

	version := exec.Command(copiedBinary, "version")
	version.Dir = outside
	if out, err := version.CombinedOutput(); err != nil {
		t.Fatalf("version failed: %v\n%s", err, string(out))
	}

	help := exec.Command(copiedBinary, "--help")
	help.Dir = outside
	out, err := help.CombinedOutput()
	if err != nil {
		t.Fatalf("--help failed: %v\n%s", err, string(out))
	}
	for _, command := range []string{"delete", "create-bills", "validate", "serve", "rate-limit"} {
		if !strings.Contains(string(out), command) {
			t.Errorf("--help does not list %q:\n%s", command, string(out))
		}
	}

	records := filepath.Join(outside, "records.yaml")
	body := "- bill_id: B1\n  delete_strategy: both\n- delete_strategy: payment_only\n"
	if err := os.WriteFile(records, []byte(body), 0o644); err != nil {
		t.Fatalf("write records: %v", err)
	}
	env := append(os.Environ(), "XDG_CONFIG_HOME="+outside, "XDG_DATA_HOME="+outside)

	validate := exec.Command(copiedBinary, "validate", records, "--output", "json")
	validate.Dir = outside
	validate.Env = env
	out, err = validate.CombinedOutput()
	if err != nil {
		t.Fatalf("validate rejected records that only carry warnings: %v\n%s", err, string(out))
	}
	if !strings.Contains(string(out), "Missing bill_payment_id in rows: 2") {
		t.Errorf("validate output does not name the row without ids:\n%s", string(out))
	}
	if strings.Contains(string(out), "rows: 1") {
		t.Errorf("a both record with a bill_id was flagged:\n%s", string(out))
	}

	strict := exec.Command(copiedBinary, "validate", records, "--strict")
	strict.Dir = outside
	strict.Env = env
	out, err = strict.CombinedOutput()
	if err == nil {
		t.Fatalf("validate --strict accepted records with warnings:\n%s", string(out))
	}
}
