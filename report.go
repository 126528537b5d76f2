package cimrepo

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var utf16BOM = []byte{0xFF, 0xFE}

// ReportLog is a UTF-16LE text file that reports are appended to. Line
// breaks are written as CRLF.
type ReportLog struct {
	mu   sync.Mutex
	f    *os.File
	echo io.Writer
}

// OpenReportLog opens path for appending, writing a byte order mark when the
// file is new. Everything written is also copied to echo unless it is nil.
func OpenReportLog(path string, echo io.Writer) (*ReportLog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		if _, err := f.Write(utf16BOM); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &ReportLog{f: f, echo: echo}, nil
}

func (l *ReportLog) WriteString(s string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.echo != nil {
		if _, err := io.WriteString(l.echo, s); err != nil {
			return 0, err
		}
	}
	if l.f == nil {
		return len(s), nil
	}
	crlf := strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
	b, err := utf16le.NewEncoder().String(crlf)
	if err != nil {
		return 0, err
	}
	if _, err := l.f.WriteString(b); err != nil {
		return 0, err
	}
	return len(s), nil
}

func (l *ReportLog) Write(p []byte) (int, error) {
	if _, err := l.WriteString(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *ReportLog) Printf(format string, args ...any) {
	_, _ = l.WriteString(fmt.Sprintf(format, args...))
}

func (l *ReportLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadReportLog decodes a report log written by ReportLog.
func ReadReportLog(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s, err := decodeUTF16(b)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(s, "\ufeff"), nil
}
