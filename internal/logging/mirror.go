package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"credit_audit/internal/models"
)

// AuditMirror keeps a local JSONL copy of every stored audit record:
// one line per record, size-rotated files, asynchronous writes. The
// mirror is a troubleshooting aid; the database stays authoritative,
// and a full channel drops the entry rather than blocking the insert
// path.
type AuditMirror struct {
	fileTemplate  string        // e.g. "/var/log/credit-audit/audit-%s.jsonl"
	maxSize       int64         // maximum size in bytes before rotation
	maxFiles      int           // rotated files to keep
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	recordCh chan *models.CreditValidationAudit
	doneCh   chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewAuditMirror creates a mirror writing to files derived from
// fileTemplate (the %s is filled with a timestamp). bufferSize bounds
// how many records may be queued before entries are dropped.
func NewAuditMirror(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*AuditMirror, error) {
	mirror := &AuditMirror{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		recordCh:      make(chan *models.CreditValidationAudit, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := mirror.openFile(); err != nil {
		return nil, err
	}

	mirror.wg.Add(1)
	go mirror.run()

	return mirror, nil
}

// Log queues one record for mirroring. When the queue is full the
// record is dropped.
func (m *AuditMirror) Log(record *models.CreditValidationAudit) {
	select {
	case m.recordCh <- record:
	default:
		// Queue full; dropping mirror entry.
	}
}

// Shutdown drains the queue, flushes the buffer and closes the file.
func (m *AuditMirror) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.doneCh)
	m.wg.Wait()
}

func (m *AuditMirror) newFileName() string {
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf(m.fileTemplate, timestamp)
}

func (m *AuditMirror) openFile() error {
	m.currentFile = m.newFileName()

	dir := filepath.Dir(m.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(m.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	m.currentSize = fi.Size()
	m.file = file
	m.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded rotates to a fresh file when adding n bytes would
// cross the size limit.
func (m *AuditMirror) rotateIfNeeded(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentSize+int64(n) < m.maxSize {
		return nil
	}

	if err := m.writer.Flush(); err != nil {
		return err
	}
	if err := m.file.Close(); err != nil {
		return err
	}

	return m.openFile()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles.
func (m *AuditMirror) cleanupOldFiles() error {
	pattern := fmt.Sprintf(m.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - m.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

func (m *AuditMirror) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case record := <-m.recordCh:
			m.writeRecord(record)
		case <-ticker.C:
			m.mu.Lock()
			_ = m.writer.Flush()
			m.mu.Unlock()
		case <-m.doneCh:
			for {
				select {
				case record := <-m.recordCh:
					m.writeRecord(record)
				default:
					m.mu.Lock()
					_ = m.writer.Flush()
					_ = m.file.Close()
					m.mu.Unlock()
					return
				}
			}
		}
	}
}

func (m *AuditMirror) writeRecord(record *models.CreditValidationAudit) {
	data, err := json.Marshal(record)
	if err != nil {
		// Unmarshalable record; skip the mirror entry.
		return
	}
	line := string(data) + "\n"
	n := len(line)

	if err := m.rotateIfNeeded(n); err != nil {
		return
	}

	m.mu.Lock()
	_, _ = m.writer.WriteString(line)
	m.currentSize += int64(n)
	m.mu.Unlock()

	_ = m.cleanupOldFiles()
}
