// Package debug appends diagnostic lines to a local file so transient
// link errors during a logging session can be inspected afterwards
// without polluting the live output.
package debug

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const logName = "mutlog-debug.log"

var (
	initOnce sync.Once
	mu       sync.Mutex
	fh       *os.File
)

func open() {
	var err error
	fh, err = os.OpenFile(logName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("debug log unavailable: %v", err)
	}
}

// Log writes one timestamped line tagged with the caller's file:line.
func Log(msg string) {
	initOnce.Do(open)
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	if _, fullPath, line, ok := runtime.Caller(1); ok {
		LogRaw(fmt.Sprintf("%s %s:%d %s", ts, filepath.Base(fullPath), line, msg))
		return
	}
	LogRaw(ts + " " + msg)
}

func Logf(format string, args ...any) {
	Log(fmt.Sprintf(format, args...))
}

// LogRaw writes one line as-is. A missing file handle drops the line.
func LogRaw(msg string) {
	initOnce.Do(open)
	mu.Lock()
	defer mu.Unlock()
	if fh == nil {
		return
	}
	fh.WriteString(msg + "\n")
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if fh == nil {
		return
	}
	fh.Sync()
	fh.Close()
	fh = nil
}
