// Package logging configures the shared logrus instance used across the
// tool: a compact single-line format with timestamp, run ID, level, and
// caller, plus optional rotating file output.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// LogFormatter renders entries as
// [2025-08-30 20:14:04] [a1b2c3d4] [info ] [flow.go:152] Duo authentication succeeded.
type LogFormatter struct{}

// Format renders a single log entry.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	runID := "--------"
	if id, ok := entry.Data["run_id"].(string); ok && id != "" {
		runID = id
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	levelStr := fmt.Sprintf("%-5s", level)

	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s] [%s] [%s] [%s:%d] %s\n", timestamp, runID, levelStr, filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		fmt.Fprintf(buffer, "[%s] [%s] [%s] %s\n", timestamp, runID, levelStr, message)
	}
	return buffer.Bytes(), nil
}

// runIDHook stamps every entry with the run's correlation ID.
type runIDHook struct {
	id string
}

func (h *runIDHook) Levels() []log.Level { return log.AllLevels }

func (h *runIDHook) Fire(entry *log.Entry) error {
	if _, ok := entry.Data["run_id"]; !ok {
		entry.Data["run_id"] = h.id
	}
	return nil
}

// SetupBaseLogger configures the shared logrus instance. Safe to call more
// than once; initialization happens only the first time.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})
		log.RegisterExitHandler(closeLogOutput)
	})
}

// SetRunID attaches the given ID to all subsequent log entries.
func SetRunID(id string) {
	log.AddHook(&runIDHook{id: id})
}

// ConfigureOutput switches between stdout and a rotating log file, and
// applies the configured verbosity.
func ConfigureOutput(toFile bool, logDir string, debug bool) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()

	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if toFile {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		if logWriter != nil {
			_ = logWriter.Close()
		}
		logWriter = &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "netreset.log"),
			MaxSize:    10,
			MaxBackups: 3,
		}
		log.SetOutput(logWriter)
		return nil
	}
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
	log.SetOutput(os.Stdout)
	return nil
}

func closeLogOutput() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
