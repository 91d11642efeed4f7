// Package log provides the logging backend shared by every package, built
// around go-logging with one logger per module.
package log

import (
	"fmt"
	"io"
	goLog "log"
	"os"
	"strings"
	"sync"

	"gopkg.in/op/go-logging.v1"
)

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Backend is a log backend.
type Backend struct {
	logging.LeveledBackend
	sync.RWMutex

	leveled logging.LeveledBackend
	w       io.WriteCloser

	file    string
	level   string
	disable bool
}

// Log is used to log a message as per the logging.Backend interface.
func (b *Backend) Log(level logging.Level, calldepth int, record *logging.Record) error {
	b.RLock()
	defer b.RUnlock()
	return b.leveled.Log(level, calldepth, record)
}

// GetLevel returns the logging level for the specified module.
func (b *Backend) GetLevel(module string) logging.Level {
	b.RLock()
	defer b.RUnlock()
	return b.leveled.GetLevel(module)
}

// SetLevel sets the logging level for the specified module.
func (b *Backend) SetLevel(level logging.Level, module string) {
	b.RLock()
	defer b.RUnlock()
	b.leveled.SetLevel(level, module)
}

// IsEnabledFor returns true if the logger is enabled for the given level.
func (b *Backend) IsEnabledFor(level logging.Level, module string) bool {
	b.RLock()
	defer b.RUnlock()
	return b.leveled.IsEnabledFor(level, module)
}

// GetLogger returns a per-module logger that writes to the backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b)
	return l
}

// GetGoLogger returns a per-module Go runtime *log.Logger that writes to
// the backend at a single level, for APIs such as http.Server.ErrorLog.
func (b *Backend) GetGoLogger(module string, level string) *goLog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		panic("log: GetGoLogger(): " + err.Error())
	}
	w := &logWriter{m: b.GetLogger(module), lvl: lvl}
	return goLog.New(w, "", 0)
}

// Close releases the log file, if any.
func (b *Backend) Close() error {
	b.Lock()
	defer b.Unlock()
	return b.w.Close()
}

func (b *Backend) newBackend() error {
	lvl, err := ParseLevel(b.level)
	if err != nil {
		return err
	}

	switch {
	case b.disable:
		b.w = nopCloser{io.Discard}
	case b.file == "":
		b.w = nopCloser{os.Stderr}
	default:
		const fileMode = 0o600
		f, err := os.OpenFile(b.file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
		if err != nil {
			return fmt.Errorf("log: failed to create log file: %w", err)
		}
		b.w = f
	}

	logFmt := logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}")
	base := logging.NewLogBackend(b.w, "", 0)
	formatted := logging.NewBackendFormatter(base, logFmt)
	b.leveled = logging.AddModuleLevel(formatted)
	b.leveled.SetLevel(lvl, "")
	return nil
}

// New initializes a logging backend writing to file, or to stderr when file
// is empty. A disabled backend discards everything.
func New(file string, level string, disable bool) (*Backend, error) {
	b := &Backend{file: file, level: level, disable: disable}
	if err := b.newBackend(); err != nil {
		return nil, err
	}
	return b, nil
}

// Discard returns a backend that drops every record.
func Discard() *Backend {
	b, err := New("", "ERROR", true)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseLevel maps a level name to its go-logging level.
func ParseLevel(l string) (logging.Level, error) {
	switch strings.ToUpper(l) {
	case "ERROR":
		return logging.ERROR, nil
	case "WARNING":
		return logging.WARNING, nil
	case "NOTICE":
		return logging.NOTICE, nil
	case "INFO":
		return logging.INFO, nil
	case "DEBUG":
		return logging.DEBUG, nil
	default:
		return logging.CRITICAL, fmt.Errorf("log: invalid level: '%v'", l)
	}
}

type logWriter struct {
	m   *logging.Logger
	lvl logging.Level
}

func (w *logWriter) Write(p []byte) (int, error) {
	// The log package always terminates records with a newline.
	s := strings.TrimSpace(string(p))
	if s == "" {
		return len(p), nil
	}
	switch w.lvl {
	case logging.ERROR:
		w.m.Error(s)
	case logging.WARNING:
		w.m.Warning(s)
	case logging.NOTICE:
		w.m.Notice(s)
	case logging.INFO:
		w.m.Info(s)
	default:
		w.m.Debug(s)
	}
	return len(p), nil
}
