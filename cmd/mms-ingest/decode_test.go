package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeDetailFile(t *testing.T, dir, name string, lines int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	for i := 0; i < lines; i++ {
		line := fmt.Sprintf("DT%-16s%s%011d%-16s%-6s%04d%-23s",
			"MERCH00100200300", "20250711", 123456+i, "411111******1111", "A1B2C3", 5542, fmt.Sprintf("REF%07d", i+1))
		if len(line) < 120 {
			line += fmt.Sprintf("%*s", 120-len(line), "")
		}
		fmt.Fprintln(f, line)
	}
	return path
}

func TestRunDecode_DetailFile(t *testing.T) {
	dir := t.TempDir()
	path := writeDetailFile(t, dir, "VERMNTSB.6759_TDDF_2400_07112025_003301.TSYSO", 3)

	decodeFileType = ""
	decodeSchemaPath = ""
	decodeVersion = 0
	if err := runDecode(nil, []string{path}); err != nil {
		t.Fatalf("runDecode: %v", err)
	}
}

func TestRunDecode_UnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mystery.bin")
	if err := os.WriteFile(path, []byte("???\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	decodeFileType = ""
	decodeSchemaPath = ""
	decodeVersion = 0
	if err := runDecode(nil, []string{path}); err == nil {
		t.Fatal("expected an identification error")
	}
}

func TestRunDecode_ForcedType(t *testing.T) {
	dir := t.TempDir()
	path := writeDetailFile(t, dir, "renamed.dat", 1)

	decodeFileType = "TDDF"
	decodeSchemaPath = ""
	decodeVersion = 0
	defer func() { decodeFileType = "" }()
	if err := runDecode(nil, []string{path}); err != nil {
		t.Fatalf("runDecode: %v", err)
	}
}
