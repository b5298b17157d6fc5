package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultHistorySize = 1000

// Config is the [logging] section of the configuration file.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	output      io.Writer
	levels      map[string]*slog.LevelVar
	loggers     map[string]*slog.Logger
	root        *slog.LevelVar
	history     *RingBuffer[LogEntry]
	callback    LogCallback
}

var std = newRegistry()

func newRegistry() *registry {
	return &registry{
		output:  os.Stderr,
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
		root:    &slog.LevelVar{},
	}
}

// Initialize configures levels, output format and the history buffer.
// Loggers handed out earlier are rebuilt so they pick up the new handlers.
func Initialize(config Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.config = config
	std.initialized = true
	std.history = NewRingBuffer[LogEntry](defaultHistorySize)
	std.root.Set(parseLevel(config.Level, slog.LevelInfo))

	for module, lv := range std.levels {
		lv.Set(std.moduleLevel(module))
		std.loggers[module] = slog.New(std.handler(lv)).With("module", module)
	}

	slog.SetDefault(slog.New(std.handler(std.root)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	logger, ok := std.loggers[module]
	std.mu.RUnlock()
	if ok {
		return logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(std.moduleLevel(module))
	logger = slog.New(std.handler(lv)).With("module", module)
	std.levels[module] = lv
	std.loggers[module] = logger
	return logger
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) {
	GetLogger(module)
	std.mu.Lock()
	defer std.mu.Unlock()
	std.levels[module].Set(parseLevel(level, std.root.Level()))
}

// GetBuffer returns the in-memory log history, nil before Initialize.
func GetBuffer() *RingBuffer[LogEntry] {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.history
}

// SetLogCallback registers a function called for each history entry.
func SetLogCallback(callback LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = callback
}

func currentSink() (*RingBuffer[LogEntry], LogCallback) {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.history, std.callback
}

// moduleLevel must be called with mu held.
func (r *registry) moduleLevel(module string) slog.Level {
	if !r.initialized {
		return slog.LevelInfo
	}
	level := parseLevel(r.config.Level, slog.LevelInfo)
	if s, ok := r.config.Modules[module]; ok {
		level = parseLevel(s, level)
	}
	return level
}

// handler must be called with mu held.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var console slog.Handler
	if r.config.Format == "json" {
		console = slog.NewJSONHandler(r.output, opts)
	} else {
		console = slog.NewTextHandler(r.output, opts)
	}
	handlers := []slog.Handler{console, NewBufferHandler(level)}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	return NewMultiHandler(handlers...)
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
