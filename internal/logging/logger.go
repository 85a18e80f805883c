package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/term"
)

// Logger levels
const (
	DEBUG = iota
	INFO
	WARN
	ERROR
)

var (
	globalLogger *Logger
	globalMu     sync.Mutex

	defaultLogDir  = "logs"
	defaultLogFile = "portalwatch.log"
	maxLogSize     = int64(5 * 1024 * 1024) // 5MB
	maxLogAge      = 14 * 24 * time.Hour
)

// Options controls where log lines go besides the log file.
type Options struct {
	// Verbose lowers the level to DEBUG and always mirrors to stderr.
	Verbose bool
	// Mirror receives a copy of every line. Defaults to stderr when it is a terminal.
	Mirror io.Writer
}

// Logger is a leveled file logger with size-based rotation.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	logger  *log.Logger
	mirror  io.Writer
	level   int
	dataDir string
	logPath string

	maxSize     int64
	currentSize int64
}

// Initialize sets up the global logger under dataDir/logs. Calling it again
// replaces the previous logger.
func Initialize(dataDir string, opts Options) error {
	l := &Logger{
		level:   INFO,
		dataDir: dataDir,
		maxSize: maxLogSize,
		mirror:  opts.Mirror,
	}
	if opts.Verbose {
		l.level = DEBUG
		if l.mirror == nil {
			l.mirror = os.Stderr
		}
	}
	if l.mirror == nil && term.IsTerminal(int(os.Stderr.Fd())) {
		l.mirror = os.Stderr
	}
	if err := l.init(); err != nil {
		return err
	}

	globalMu.Lock()
	old := globalLogger
	globalLogger = l
	globalMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// GetLogger returns the global logger. Before Initialize it returns a logger
// that only writes to stderr.
func GetLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = &Logger{level: INFO, mirror: os.Stderr}
	}
	return globalLogger
}

func (l *Logger) init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	logDir := filepath.Join(l.dataDir, defaultLogDir)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	l.logPath = filepath.Join(logDir, defaultLogFile)
	return l.openLogFile()
}

func (l *Logger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err == nil {
		l.currentSize = info.Size()
	}

	l.file = file
	l.logger = log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

func (l *Logger) rotateIfNeeded() error {
	if l.file == nil || l.currentSize < l.maxSize {
		return nil
	}

	l.file.Close()

	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := filepath.Join(filepath.Dir(l.logPath), fmt.Sprintf("portalwatch-%s.log", timestamp))
	if err := os.Rename(l.logPath, rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := l.openLogFile(); err != nil {
		return err
	}

	// Runs are short-lived, so cleanup happens inline.
	l.cleanOldLogs()
	return nil
}

// cleanOldLogs removes rotated log files older than maxLogAge.
func (l *Logger) cleanOldLogs() {
	logDir := filepath.Dir(l.logPath)
	files, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxLogAge)
	for _, file := range files {
		if file.IsDir() || file.Name() == defaultLogFile || filepath.Ext(file.Name()) != ".log" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(logDir, file.Name()))
		}
	}
}

func (l *Logger) write(level int, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, v...)
	fullMsg := fmt.Sprintf("[%s] %s", getLevelString(level), msg)

	if l.logger != nil {
		l.rotateIfNeeded()
		l.logger.Output(3, fullMsg)
		l.currentSize += int64(len(fullMsg)) + 1
	}
	if l.mirror != nil {
		fmt.Fprintf(l.mirror, "%s %s\n", time.Now().Format("15:04:05"), fullMsg)
	}
}

func getLevelString(level int) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(DEBUG, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(INFO, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.write(WARN, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(ERROR, format, v...)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.logger = nil
		return err
	}
	return nil
}

// GetLogPath returns the current log file path, empty for the stderr-only
// fallback logger.
func (l *Logger) GetLogPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}

// Package-level convenience functions

func Debug(format string, v ...interface{}) {
	GetLogger().Debug(format, v...)
}

func Info(format string, v ...interface{}) {
	GetLogger().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GetLogger().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GetLogger().Error(format, v...)
}

// Writer returns an io.Writer that logs each write at INFO level.
func Writer() io.Writer {
	return &logWriter{}
}

type logWriter struct{}

func (w *logWriter) Write(p []byte) (n int, err error) {
	GetLogger().Info("%s", string(p))
	return len(p), nil
}

// RedirectStandardLog sends the standard log package (used by chromedp
// helpers and database/sql drivers) through the global logger.
func RedirectStandardLog() {
	log.SetOutput(Writer())
	log.SetFlags(0)
}
