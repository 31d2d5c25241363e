package cdr

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/ie"
)

func TestWriteAndRotate(t *testing.T) {
	dir := t.TempDir()
	j, err := New(filepath.Join(dir, "cdr.csv"), 3, log.StandardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer j.Close()

	for i := 0; i < 3; i++ {
		j.Write(ie.IMSI("123456789"), "created")
	}
	// Rotation file names have one-second resolution, so the rotating
	// write has to land in a later second to get a file of its own.
	time.Sleep(1100 * time.Millisecond)
	for i := 0; i < 2; i++ {
		j.Write(ie.IMSI("123456789"), "created")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotation to produce at least 2 files, got %d", len(entries))
	}
}

func TestWriteProducesParsableRow(t *testing.T) {
	dir := t.TempDir()
	j, err := New(filepath.Join(dir, "cdr.csv"), 1000, log.StandardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Write(ie.IMSI("123456789"), "created")
	j.Close()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty CDR file")
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("CDR file is not valid CSV: %v", err)
	}
	if len(records) != 1 || len(records[0]) != 3 || records[0][1] != "123456789" || records[0][2] != "created" {
		t.Fatalf("unexpected CDR rows: %q", records)
	}
}
