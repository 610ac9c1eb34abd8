package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

type logLevel int32

const (
	SilentLevel logLevel = iota
	MajorLevel
	MinorLevel
	DebugLevel
)

var (
	majorPrefix = ""
	minorPrefix = "  "
	debugPrefix = "   Dbg:"

	outMu sync.Mutex // Serializes writes from refreshers and servers
	out   io.Writer = os.Stdout
	level int32
)

func (t logLevel) String() string {
	switch t {
	case MajorLevel:
		return "Major"
	case MinorLevel:
		return "Minor"
	case DebugLevel:
		return "Debug"
	}

	return "Silent"
}

// SetOut changes the output of logging to the supplied io.Writer. The default is
// os.Stdout. The supplied io.Writer must never be nil.
func SetOut(w io.Writer) {
	if w == nil {
		panic("log.SetOut() called with a nil io.Writer")
	}
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// Out returns an io.Writer for specialist logger functions which are not controlled by
// log levels, such as the per-query log. Writes via the returned value are serialized
// with all other log output. The return value will never be nil.
func Out() io.Writer {
	return lockedWriter{}
}

type lockedWriter struct{}

func (lockedWriter) Write(b []byte) (int, error) {
	outMu.Lock()
	defer outMu.Unlock()

	return out.Write(b)
}

// SetLevel sets the current logging level.
func SetLevel(l logLevel) {
	atomic.StoreInt32(&level, int32(l))
}

// Level returns the current level.
func Level() logLevel {
	return logLevel(atomic.LoadInt32(&level))
}

// IfMajor returns true if Major logging is written to the output stream. Applications
// have access to these If* functions in cases where evaluation of the log arguments is
// expensive and the caller wishes to minimize that cost.
func IfMajor() bool {
	return Level() >= MajorLevel
}

func IfMinor() bool {
	return Level() >= MinorLevel
}

func IfDebug() bool {
	return Level() >= DebugLevel
}

// Majorf provides an approximate fmt.Printf equivalent interface to logging. Output is
// only generated if the level is >= Major. A newline is always added to the end of the
// output so the caller should not have one in their format string.
func Majorf(format string, a ...interface{}) (n int, err error) {
	if IfMajor() {
		return prefixAndPrintLines(fmt.Sprintf(format, a...), majorPrefix)
	}

	return 0, nil
}

// Major provides a fmt.Print like interface to logging. Output is only generated if the
// level is >= Major. Major uses fmt.Sprint to generate the output line thus it inherits
// the feature whereby spaces are added between operands when neither is a string.
func Major(a ...interface{}) (n int, err error) {
	if IfMajor() {
		return prefixAndPrintLines(fmt.Sprint(a...), majorPrefix)
	}

	return 0, nil
}

// Minorf is the Minor level equivalent of Majorf.
func Minorf(format string, a ...interface{}) (n int, err error) {
	if IfMinor() {
		return prefixAndPrintLines(fmt.Sprintf(format, a...), minorPrefix)
	}

	return 0, nil
}

// Minor is the Minor level equivalent of Major.
func Minor(a ...interface{}) (n int, err error) {
	if IfMinor() {
		return prefixAndPrintLines(fmt.Sprint(a...), minorPrefix)
	}

	return 0, nil
}

func Debugf(format string, a ...interface{}) (n int, err error) {
	if IfDebug() {
		return prefixAndPrintLines(fmt.Sprintf(format, a...), debugPrefix)
	}

	return 0, nil
}

func Debug(a ...interface{}) (n int, err error) {
	if IfDebug() {
		return prefixAndPrintLines(fmt.Sprint(a...), debugPrefix)
	}

	return 0, nil
}

// prefixAndPrintLines is the common handler which takes potentially multiple lines and
// sends them to the out stream prefixed with the supplied prefix. The whole set of lines
// is written under one lock so concurrent loggers never interleave mid-message.
func prefixAndPrintLines(lines, prefix string) (int, error) {
	var s string
	if !strings.Contains(lines, "\n") { // Expect this to be the common case
		s = prefix + lines + "\n"
	} else {
		ar := strings.Split(lines, "\n")
		for len(ar) > 0 && len(ar[len(ar)-1]) == 0 { // Chomp trailing empty lines
			ar = ar[:len(ar)-1]
		}
		s = prefix + strings.Join(ar, "\n"+prefix) + "\n"
	}

	outMu.Lock()
	defer outMu.Unlock()

	return io.WriteString(out, s)
}
