package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleReport = `{
  "headers": [{"tool_name": "scancode-toolkit", "tool_version": "31.2.4"}],
  "files": [
    {
      "path": "pkg",
      "type": "directory",
      "licenses": []
    },
    {
      "path": "LICENSE",
      "type": "file",
      "licenses": [
        {
          "key": "mit",
          "score": 99.53,
          "matched_text": "Permission is hereby granted, free of charge"
        },
        {
          "key": "apache-2.0",
          "score": 40.0,
          "matched_text": "Licensed under the Apache License"
        }
      ]
    },
    {
      "path": "main.py",
      "type": "file",
      "licenses": []
    }
  ]
}`

func TestParseScanCodeReport(t *testing.T) {
	matches, err := parseScanCodeReport([]byte(sampleReport))
	if err != nil {
		t.Fatalf("parseScanCodeReport: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].LicenseID != "mit" || matches[0].Confidence != 99.53 {
		t.Errorf("matches[0] = %+v, want mit @ 99.53", matches[0])
	}
	if matches[0].Excerpt == "" {
		t.Error("matched_text should carry through as the excerpt")
	}
	if matches[1].LicenseID != "apache-2.0" || matches[1].Confidence != 40.0 {
		t.Errorf("matches[1] = %+v, want apache-2.0 @ 40.0", matches[1])
	}
}

func TestParseScanCodeReportEmpty(t *testing.T) {
	matches, err := parseScanCodeReport([]byte(`{"files": []}`))
	if err != nil {
		t.Fatalf("parseScanCodeReport: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0", len(matches))
	}
}

func TestParseScanCodeReportMalformed(t *testing.T) {
	if _, err := parseScanCodeReport([]byte("not json at all")); err == nil {
		t.Error("expected a decode error")
	}
}

func TestScanCodeMissingBinary(t *testing.T) {
	target := filepath.Join(t.TempDir(), "f.py")
	if err := os.WriteFile(target, []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := NewScanCode(filepath.Join(t.TempDir(), "no-such-scancode"))
	if _, err := eng.Detect(context.Background(), target); err == nil {
		t.Error("expected an error when the binary does not exist")
	}
}

func TestScanCodeDefaults(t *testing.T) {
	eng := NewScanCode("")
	if eng.bin != "scancode" {
		t.Errorf("bin = %q, want scancode", eng.bin)
	}
	if eng.Name() != ProviderScanCode {
		t.Errorf("name = %q, want %q", eng.Name(), ProviderScanCode)
	}
}
