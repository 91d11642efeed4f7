package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"gopkg.in/op/go-logging.v1"

	"omemo/internal/instrument"
	"omemo/internal/log"
	"omemo/internal/relay"
)

func main() {
	listen := flag.String("listen", ":8080", "listen address")
	logFile := flag.String("log-file", "", "log file (stderr if empty)")
	logLevel := flag.String("log-level", "NOTICE", "log level")
	version := flag.Bool("v", false, "Get version info.")
	flag.Parse()

	if *version {
		fmt.Printf("version is %s\n", versioninfo.Short())
		return
	}

	backend, err := log.New(*logFile, *logLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyserver: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()
	l := backend.GetLogger("keyserver")

	instrument.Init()
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", instrument.Handler())
	mux.Handle("/", relay.Handler(relay.NewMemory(), l))

	srv := &http.Server{
		Addr:              *listen,
		Handler:           accessLog(l, mux),
		ErrorLog:          backend.GetGoLogger("keyserver/http", "WARNING"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		l.Notice("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	l.Noticef("keyserver %s listening on %s", versioninfo.Short(), *listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
}

// statusRecorder remembers the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func accessLog(l *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		l.Infof("%s %s from %s: %d, %d bytes in %s",
			r.Method, r.URL.Path, r.RemoteAddr, rec.status, rec.bytes, time.Since(start))
	})
}
