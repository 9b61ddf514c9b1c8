package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

// GetLogger returns the default logger of the package-level provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a component logger of the package-level provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetProvider replaces the package-level provider. Loggers obtained earlier
// keep writing to the previous provider.
func SetProvider(p LoggerProvider) {
	if p == nil {
		return
	}
	providerMu.Lock()
	provider = p
	providerMu.Unlock()
}

// SetLevel sets the minimum level on the package-level provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}

// ZerologProvider creates loggers that share a single zerolog root.
type ZerologProvider struct {
	root  zerolog.Logger
	level *levelVar
}

type levelVar struct {
	mu    sync.RWMutex
	level Level
}

func (v *levelVar) get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	v.level = l
	v.mu.Unlock()
}

// NewZerologProvider returns a provider writing JSON lines to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	return &ZerologProvider{
		root:  zerolog.New(w).With().Timestamp().Logger(),
		level: &levelVar{level: level},
	}
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{logger: p.root, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{
		logger: p.root.With().Str(ComponentKey, name).Logger(),
		level:  p.level,
	}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.set(level)
}

type zerologLogger struct {
	logger zerolog.Logger
	level  *levelVar
}

func (z *zerologLogger) Debug(msg string, fields ...any) {
	z.emit(LevelDebug, msg, fields)
}

func (z *zerologLogger) Info(msg string, fields ...any) {
	z.emit(LevelInfo, msg, fields)
}

func (z *zerologLogger) Warn(msg string, fields ...any) {
	z.emit(LevelWarn, msg, fields)
}

func (z *zerologLogger) Error(msg string, fields ...any) {
	z.emit(LevelError, msg, fields)
}

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fieldValue(fields[i+1]))
	}
	return &zerologLogger{logger: ctx.Logger(), level: z.level}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= z.level.get()
}

func (z *zerologLogger) emit(level Level, msg string, fields []any) {
	if level < z.level.get() {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = z.logger.Debug()
	case LevelInfo:
		ev = z.logger.Info()
	case LevelWarn:
		ev = z.logger.Warn()
	default:
		ev = z.logger.Error()
	}

	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceAttrKey, st)
			}
			if root := rootCause(err); root != "" {
				ev = ev.Str(CauseAttrKey, root)
			}
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if err, ok := fields[i+1].(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, fields[i+1])
	}
	ev.Msg(msg)
}

func fieldValue(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}
