package obs

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	// minLevel holds the rank of the lowest level written.
	minLevel atomic.Int32
)

var levels = map[string]int32{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Logger returns the shared JSON-line logger. Audit entries and request
// logs go through the same writer.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetLevel drops entries below level. Unknown names leave it unchanged and
// return false.
func SetLevel(level string) bool {
	rank, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if ok {
		minLevel.Store(rank)
	}
	return ok
}

func enabled(level string) bool {
	rank, ok := levels[level]
	return !ok || rank >= minLevel.Load()
}

// LogRequest marshals entry as one line.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Log writes one JSON line with ts, level, msg and the given fields.
func Log(level, msg string, fields map[string]any) {
	if !enabled(level) {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	LogRequest(entry)
}
