package debug

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (boot, storage, errors)
	LevelLive    = 2 // Live info (requests served, photos taken)
	LevelVerbose = 3 // Verbose (workflow states, counter values)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger           = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (boot sequence, storage medium, errors)
// 2 = live info (requests, captures)
// 3 = verbose (workflow transitions, counter reads/writes)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects log output. nil restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	out = w
	rebuild()
}

// rebuild recreates the zerolog logger. Caller holds mu.
func rebuild() {
	if level <= LevelOff {
		logger = zerolog.Nop()
		return
	}
	cw := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stdout,
	}
	logger = zerolog.New(cw).
		Level(zerologLevel(level)).
		With().Timestamp().Str("app", "sdcam").
		Logger()
}

// zerologLevel maps a debug level to the lowest zerolog level it lets through.
func zerologLevel(l int) zerolog.Level {
	switch {
	case l >= LevelTrace:
		return zerolog.TraceLevel
	case l >= LevelVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Logger returns the underlying structured logger.
// It is a no-op logger when debugging is off.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Info().Msgf(format, args...)
	}
}

// Warn prints a level 1 warning.
func Warn(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Warn().Msgf(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Info().Msg("═══ " + title + " ═══")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Info().Interface("value", value).Msg(name)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if IsEnabled(LevelLive) {
		l := Logger()
		l.Info().Str("lvl", "live").Msgf(format, args...)
	}
}

// Shot prints a stored capture (level 2).
func Shot(seq int, name string, size string) {
	if IsEnabled(LevelLive) {
		l := Logger()
		l.Info().Str("lvl", "live").Int("seq", seq).Str("file", name).Str("size", size).Msg("photo stored")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if IsEnabled(LevelVerbose) {
		l := Logger()
		l.Debug().Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if IsEnabled(LevelVerbose) {
		l := Logger()
		l.Debug().Msgf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if IsEnabled(LevelVerbose) {
		l := Logger()
		l.Debug().Msg("━━━ " + name + " ━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if IsEnabled(LevelVerbose) {
		l := Logger()
		l.Debug().Int("step", num).Msg(description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if IsEnabled(LevelTrace) {
		l := Logger()
		l.Trace().Msgf(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if IsEnabled(LevelTrace) {
		l := Logger()
		l.Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Error().Err(err).Send()
	}
}

// Errorf prints a formatted error message (level 1+).
func Errorf(format string, args ...interface{}) {
	if IsEnabled(LevelInfo) {
		l := Logger()
		l.Error().Msgf(format, args...)
	}
}
