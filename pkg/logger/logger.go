package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/simplimath/pkg/configuration"
)

// LogLevel definiert die verschiedenen Log-Level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var logLevelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// LogArea definiert die verschiedenen Log-Bereiche
type LogArea string

const (
	AreaInterpreter LogArea = "interpreter"
	AreaScheduler   LogArea = "scheduler"
	AreaTerminal    LogArea = "terminal"
	AreaAuth        LogArea = "auth"
	AreaStorage     LogArea = "storage"
	AreaConfig      LogArea = "config"
	AreaSecurity    LogArea = "security"
	AreaGeneral     LogArea = "general"
)

// allAreas lists every known area in display order.
var allAreas = []LogArea{
	AreaInterpreter, AreaScheduler, AreaTerminal, AreaAuth,
	AreaStorage, AreaConfig, AreaSecurity, AreaGeneral,
}

// Logger writes area-filtered entries to a size-rotated file.
type Logger struct {
	enabled       int32              // atomic bool
	level         int32              // atomic LogLevel
	areaEnabled   map[LogArea]*int32 // atomic bools per area
	file          *os.File
	mutex         sync.Mutex
	logPath       string
	maxSizeMB     int64
	rotationCount int
	currentSize   int64
}

var (
	globalLogger *Logger
	initOnce     sync.Once
)

// Initialize sets up the global logger from the [Debug] config section.
// Until it is called every logging function is a no-op.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		globalLogger, err = newLogger()
	})
	return err
}

func newLogger() (*Logger, error) {
	l := &Logger{areaEnabled: make(map[LogArea]*int32, len(allAreas))}
	for _, area := range allAreas {
		l.areaEnabled[area] = new(int32)
	}
	l.loadConfig()
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

// loadConfig lädt die Logging-Konfiguration
func (l *Logger) loadConfig() {
	atomic.StoreInt32(&l.enabled, boolToInt32(configuration.GetBool("Debug", "enable_debug_logging", true)))
	atomic.StoreInt32(&l.level, int32(parseLogLevel(configuration.GetString("Debug", "log_level", "INFO"))))

	l.logPath = configuration.GetString("Debug", "log_file", "simplimath.log")
	l.maxSizeMB = int64(configuration.GetInt("Debug", "max_log_size_mb", 10))
	l.rotationCount = configuration.GetInt("Debug", "log_rotation_count", 3)

	for area, flag := range l.areaEnabled {
		enabled := configuration.GetBool("Debug", "log_"+string(area), false)
		atomic.StoreInt32(flag, boolToInt32(enabled))
	}
}

func (l *Logger) openLogFile() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		l.file.Close()
	}
	if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
		return err
	}
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file = file
	if stat, err := file.Stat(); err == nil {
		l.currentSize = stat.Size()
	}
	return nil
}

// rotateLocked shifts log -> log.1 -> log.2 ... and reopens. Caller holds mutex.
func (l *Logger) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	for i := l.rotationCount - 1; i >= 1; i-- {
		oldName := fmt.Sprintf("%s.%d", l.logPath, i)
		newName := fmt.Sprintf("%s.%d", l.logPath, i+1)
		if i == l.rotationCount-1 {
			os.Remove(newName)
		}
		os.Rename(oldName, newName)
	}
	os.Rename(l.logPath, l.logPath+".1")

	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentSize = 0
	return nil
}

func (l *Logger) isAreaEnabled(area LogArea) bool {
	if flag, exists := l.areaEnabled[area]; exists {
		return atomic.LoadInt32(flag) != 0
	}
	return false
}

// shouldLog prüft ob ein Log-Eintrag geschrieben werden soll
func (l *Logger) shouldLog(level LogLevel, area LogArea) bool {
	if atomic.LoadInt32(&l.enabled) == 0 {
		return false
	}
	if atomic.LoadInt32(&l.level) > int32(level) {
		return false
	}
	return l.isAreaEnabled(area)
}

// formatEntry renders one log line.
func formatEntry(ts time.Time, level LogLevel, area LogArea, file string, line int, message string) string {
	return fmt.Sprintf("[%s] %s [%s:%d] [%s] %s\n",
		ts.Format("2006-01-02 15:04:05.000"),
		logLevelNames[level],
		filepath.Base(file),
		line,
		strings.ToUpper(string(area)),
		message)
}

func (l *Logger) writeLog(level LogLevel, area LogArea, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	_, file, line, _ := runtime.Caller(3)
	entry := formatEntry(time.Now(), level, area, file, line, message)

	l.mutex.Lock()
	if l.file != nil {
		if n, err := l.file.WriteString(entry); err == nil {
			l.currentSize += int64(n)
			if l.maxSizeMB > 0 && l.currentSize > l.maxSizeMB*1024*1024 {
				l.rotateLocked()
			}
		}
	}
	l.mutex.Unlock()

	// Wichtige Meldungen zusätzlich ins Standard-Log
	if level >= WARN {
		log.Printf("[%s] [%s] %s", logLevelNames[level], strings.ToUpper(string(area)), message)
	}
}

func logAt(level LogLevel, area LogArea, format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.shouldLog(level, area) {
		globalLogger.writeLog(level, area, format, args...)
	}
}

// Debug schreibt Debug-Logs
func Debug(area LogArea, format string, args ...interface{}) { logAt(DEBUG, area, format, args...) }

// Info schreibt Info-Logs
func Info(area LogArea, format string, args ...interface{}) { logAt(INFO, area, format, args...) }

// Warn schreibt Warning-Logs
func Warn(area LogArea, format string, args ...interface{}) { logAt(WARN, area, format, args...) }

// Error schreibt Error-Logs
func Error(area LogArea, format string, args ...interface{}) { logAt(ERROR, area, format, args...) }

// Fatal logs unconditionally and exits the process.
func Fatal(area LogArea, format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.writeLog(FATAL, area, format, args...)
	}
	log.Fatalf("[FATAL] [%s] %s", strings.ToUpper(string(area)), fmt.Sprintf(format, args...))
}

// Terminal Logging
func TerminalDebug(format string, args ...interface{}) { Debug(AreaTerminal, format, args...) }
func TerminalInfo(format string, args ...interface{})  { Info(AreaTerminal, format, args...) }
func TerminalWarn(format string, args ...interface{})  { Warn(AreaTerminal, format, args...) }
func TerminalError(format string, args ...interface{}) { Error(AreaTerminal, format, args...) }

// Auth Logging
func AuthDebug(format string, args ...interface{}) { Debug(AreaAuth, format, args...) }
func AuthInfo(format string, args ...interface{})  { Info(AreaAuth, format, args...) }
func AuthWarn(format string, args ...interface{})  { Warn(AreaAuth, format, args...) }
func AuthError(format string, args ...interface{}) { Error(AreaAuth, format, args...) }

// Storage Logging
func StorageDebug(format string, args ...interface{}) { Debug(AreaStorage, format, args...) }
func StorageInfo(format string, args ...interface{})  { Info(AreaStorage, format, args...) }
func StorageWarn(format string, args ...interface{})  { Warn(AreaStorage, format, args...) }
func StorageError(format string, args ...interface{}) { Error(AreaStorage, format, args...) }

// Config Logging
func ConfigInfo(format string, args ...interface{}) { Info(AreaConfig, format, args...) }
func ConfigWarn(format string, args ...interface{}) { Warn(AreaConfig, format, args...) }

// Security-Logging
func SecurityInfo(format string, args ...interface{}) { Info(AreaSecurity, format, args...) }
func SecurityWarn(format string, args ...interface{}) { Warn(AreaSecurity, format, args...) }

// ReloadConfig lädt die Konfiguration neu
func ReloadConfig() error {
	if globalLogger == nil {
		return fmt.Errorf("logger not initialized")
	}
	globalLogger.loadConfig()
	return nil
}

// EnableArea aktiviert Logging für einen Bereich
func EnableArea(area LogArea) {
	setArea(area, true)
}

// DisableArea deaktiviert Logging für einen Bereich
func DisableArea(area LogArea) {
	setArea(area, false)
}

func setArea(area LogArea, enabled bool) {
	if globalLogger == nil {
		return
	}
	if flag, exists := globalLogger.areaEnabled[area]; exists {
		atomic.StoreInt32(flag, boolToInt32(enabled))
	}
}

// GetAreaStatus gibt den Status eines Bereichs zurück
func GetAreaStatus(area LogArea) bool {
	return globalLogger != nil && globalLogger.isAreaEnabled(area)
}

// ListAreas gibt alle verfügbaren Bereiche zurück
func ListAreas() []LogArea {
	return append([]LogArea(nil), allAreas...)
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	}
	return INFO
}

// Close schließt das Logging-System
func Close() {
	if globalLogger == nil {
		return
	}
	globalLogger.mutex.Lock()
	defer globalLogger.mutex.Unlock()
	if globalLogger.file != nil {
		globalLogger.file.Close()
		globalLogger.file = nil
	}
}
