// SPDX-License-Identifier: Apache-2.0

// Command athena-udf-devserver serves the Athena UDF envelope over plain
// HTTP for local development, so UDFs can be exercised with curl instead of
// a deployed Lambda.
//
//	POST /invoke     one request envelope (PingRequest or UDF request)
//	GET  /functions  signatures of the registered functions
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/matthias-Q/athena-udf/athenaudf"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	registry := devRegistry()
	handler := athenaudf.NewHandler(registry)
	handler.SetLogger(logger)

	srv := &server{cfg: cfg, logger: logger, registry: registry, handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", srv.handleInvoke)
	mux.HandleFunc("GET /functions", srv.handleFunctions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logger.Info("listening", "addr", cfg.Addr, "functions", len(registry.Functions()))
	httpSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if err := httpSrv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// devRegistry mirrors the functions of the simple-udf example so queries
// developed locally run unchanged against the deployed Lambda.
func devRegistry() *athenaudf.Registry {
	return athenaudf.NewRegistry(
		athenaudf.MustFunction("string_reverse", func(value string) string {
			runes := []rune(value)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes)
		}),
		athenaudf.MustFunction("add_numbers", func(a, b int64) int64 { return a + b }),
		athenaudf.MustFunction("multiply", func(a, b int64) int64 { return a * b }),
		athenaudf.MustFunction("concat_three", func(a, b, c string) string { return a + b + c }),
		athenaudf.MustFunction("uppercase_filtered", func(value string) *string {
			if len(value) < 3 {
				return nil
			}
			upper := strings.ToUpper(value)
			return &upper
		}),
	)
}

type server struct {
	cfg      *Config
	logger   *slog.Logger
	registry *athenaudf.Registry
	handler  *athenaudf.Handler
}

func (s *server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "invalid gzip body: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer gz.Close()
		body = gz
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.handler.Handle(r.Context(), payload)
	if err != nil {
		s.logger.Error("invoke failed", "err", err)
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, r, resp)
}

func (s *server) handleFunctions(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.registry.Describe())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, body)
}

// writeError reports failures the way the Lambda runtime does: an error type
// and message, no output records.
func (s *server) writeError(w http.ResponseWriter, err error) {
	errType := "Error"
	if udfErr, ok := err.(*athenaudf.UDFError); ok {
		errType = udfErr.Kind
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"errorType":    errType,
		"errorMessage": err.Error(),
	})
}

func (s *server) writeJSON(w http.ResponseWriter, r *http.Request, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	if s.cfg.Gzip && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := gz.Write(body); err != nil {
			s.logger.Error("writing response", "err", err)
		}
		return
	}
	if _, err := w.Write(body); err != nil {
		s.logger.Error("writing response", "err", err)
	}
}
