// Package cdr implements the append-only Call Detail Record journal:
// a serialized CSV writer with row-count-based rotation.
package cdr

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/ie"
)

const flushEvery = 50

// Journal serializes CDR writes under a single mutex and rotates to a
// freshly timestamped file once maxLines rows have been written. File
// names have one-second resolution; a rotation within the same second
// as the previous file's creation appends to that same file.
type Journal struct {
	mu       sync.Mutex
	basename string
	maxLines int
	logger   *log.Logger

	file *os.File
	w    *csv.Writer
	rows int
}

// New creates the journal and opens its first rotation file.
func New(basename string, maxLines int, logger *log.Logger) (*Journal, error) {
	j := &Journal{basename: basename, maxLines: maxLines, logger: logger}
	if !j.createFile() {
		// A session-store-less CDR journal can still function
		// (sessions continue to be tracked); only the disk trail
		// is missing, so this is logged, not fatal.
		logger.Infof("CDR journal could not create its initial file under %s", basename)
	}
	return j, nil
}

func (j *Journal) createFile() bool {
	if j.file != nil {
		j.w.Flush()
		j.file.Close()
	}

	ext := filepath.Ext(j.basename)
	stem := strings.TrimSuffix(j.basename, ext)
	if ext == "" {
		ext = ".csv"
	}

	now := time.Now()
	name := fmt.Sprintf("%s_%d-%d-%d_%d:%d:%d%s",
		stem, now.Year(), int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second(), ext)

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		j.logger.Errorf("can't create CDR journal with name %s: %v", name, err)
		j.file = nil
		j.w = nil
		return false
	}

	j.logger.Debugf("created CDR journal with name %s", name)
	j.file = f
	j.w = csv.NewWriter(f)
	j.w.UseCRLF = true
	j.rows = 0
	return true
}

// Write appends one CDR row for imsi/action, rotating first if the
// current file has reached maxLines rows, and flushing every 50 rows.
func (j *Journal) Write(imsi ie.IMSI, action string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.rows >= j.maxLines || j.file == nil {
		j.rows = 0
		if !j.createFile() {
			return
		}
	}

	row := []string{time.Now().Format("2006-01-02 15:04:05"), string(imsi), action}
	if err := j.w.Write(row); err != nil {
		j.logger.Warnf("CDR journal write failed: %v", err)
		return
	}

	j.rows++
	if j.rows%flushEvery == 0 {
		j.w.Flush()
	}
}

// Close flushes and releases the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	j.w.Flush()
	err := j.file.Close()
	j.file = nil
	return err
}
