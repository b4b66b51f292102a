// Package blog is a minimal leveled logger keyed on the object a message is
// about, in the style bushel's descriptor pipeline uses throughout: callers
// pass the thing they're logging about (a document, a digest, nil) as the
// first argument and it is rendered as a prefix.
package blog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level controls which messages are emitted.
type Level int32

const (
	// LevelError logs Errorf calls (Logf calls are logged at every level).
	LevelError Level = iota
	// LevelInfo additionally logs Infof calls.
	LevelInfo
	// LevelDebug additionally logs Debugf calls.
	LevelDebug
)

var level int32 = int32(LevelInfo)

// SetLevel changes the global log level.
func SetLevel(l Level) {
	atomic.StoreInt32(&level, int32(l))
}

func enabled(l Level) bool {
	return Level(atomic.LoadInt32(&level)) >= l
}

var logger = log.New(os.Stderr, "", log.LstdFlags)

func prefix(o any) string {
	if o == nil {
		return ""
	}
	if s, ok := o.(string); ok {
		return s + ": "
	}
	if s, ok := o.(fmt.Stringer); ok {
		return s.String() + ": "
	}
	return fmt.Sprintf("%v: ", o)
}

// Debugf logs a debug-level message about o.
func Debugf(o any, format string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	logger.Printf("DEBUG : "+prefix(o)+format, args...)
}

// Infof logs an info-level message about o.
func Infof(o any, format string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	logger.Printf("INFO  : "+prefix(o)+format, args...)
}

// Errorf logs an error-level message about o. Error-level messages are
// always emitted regardless of the configured level.
func Errorf(o any, format string, args ...any) {
	logger.Printf("ERROR : "+prefix(o)+format, args...)
}

// Logf logs an unconditional message about o, used for top-level lifecycle
// events (cycle start/finish, missing-descriptor counts).
func Logf(o any, format string, args ...any) {
	logger.Printf("NOTICE: "+prefix(o)+format, args...)
}
