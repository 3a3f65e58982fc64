package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const DefaultMaxSize = 2 * 1024 * 1024 // 2MB

// RotatingWriter is a file writer that keeps one ".1" backup once maxSize is crossed.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup tees the standard logger to stdout and a rotating file at logPath.
func Setup(logPath string, maxSize int64) (*RotatingWriter, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	rw, err := NewRotatingWriter(logPath, maxSize)
	if err != nil {
		return nil, err
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > maxSize {
		os.Truncate(path, 0)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, _ := f.Stat(); info != nil {
		size = info.Size()
	}

	return &RotatingWriter{file: f, path: path, size: size, maxSize: maxSize}, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}
	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}
	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

var debugEnabled atomic.Bool

// SetLevel turns Debugf output on when level is "debug".
func SetLevel(level string) {
	debugEnabled.Store(strings.EqualFold(level, "debug"))
}

func Debugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Output(2, "[debug] "+fmt.Sprintf(format, args...))
	}
}
