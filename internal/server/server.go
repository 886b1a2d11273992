package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-blingfire/internal/batch"
	"github.com/example/go-blingfire/internal/config"
	"github.com/example/go-blingfire/internal/corpus"
	"github.com/example/go-blingfire/internal/tokenizer"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxBatchTexts  int
	workers        int
	batchWorkers   int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   1 << 20,
		maxBatchTexts:  1024,
		workers:        0,
		batchWorkers:   0,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed length in bytes of any single text.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxBatchTexts sets the maximum number of texts in one POST /tokenize/batch.
func WithMaxBatchTexts(n int) Option {
	return func(o *options) { o.maxBatchTexts = n }
}

// WithWorkers sets the maximum number of requests tokenizing at once.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithBatchWorkers sets the parallelism inside one batch request.
func WithBatchWorkers(n int) Option {
	return func(o *options) { o.batchWorkers = n }
}

// WithRequestTimeout sets the per-request tokenization deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	tok  tokenizer.Tokenizer
	opts options
	sem  chan struct{} // semaphore for worker pool
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, POST /tokenize and
// POST /tokenize/batch against tok.
func NewHandler(tok tokenizer.Tokenizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		tok:  tok,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	mux.HandleFunc("/tokenize/batch", h.handleBatch)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok", Version: buildVersion()})
}

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	IDs   []int32 `json:"ids"`
	Count int     `json:"count"`
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type batchResponse struct {
	IDs [][]int32 `json:"ids"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	trim, ok := parseTrim(w, r)
	if !ok {
		return
	}

	var req tokenizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	release, ok := h.acquire(ctx, w)
	if !ok {
		return
	}

	start := time.Now()
	ids, err := callWithContext(ctx, release, func() ([]int32, error) {
		return h.tok.TextToIDs(req.Text)
	})
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, err, slog.Int("text_len", len(req.Text)), slog.Int64("duration_ms", durationMS))
		return
	}

	if trim {
		ids = corpus.TrimPadding(ids)
	}

	h.log.InfoContext(r.Context(), "tokenize complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int("ids", len(ids)),
		slog.Bool("trim", trim),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, tokenizeResponse{IDs: ids, Count: len(ids)})
}

func (h *handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	trim, ok := parseTrim(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.Texts) > h.opts.maxBatchTexts {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds maximum of %d texts", h.opts.maxBatchTexts))
		return
	}

	for i, text := range req.Texts {
		if len(text) > h.opts.maxTextBytes {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("text %d exceeds maximum size of %d bytes", i, h.opts.maxTextBytes))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	release, ok := h.acquire(ctx, w)
	if !ok {
		return
	}

	start := time.Now()
	results, err := callWithContext(ctx, release, func() ([][]int32, error) {
		return batch.TextsToIDs(ctx, h.tok, req.Texts, batch.Options{Workers: h.opts.batchWorkers})
	})
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, err, slog.Int("texts", len(req.Texts)), slog.Int64("duration_ms", durationMS))
		return
	}

	if trim {
		for i := range results {
			results[i] = corpus.TrimPadding(results[i])
		}
	}

	h.log.InfoContext(r.Context(), "batch tokenize complete",
		slog.Int("texts", len(req.Texts)),
		slog.Bool("trim", trim),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, batchResponse{IDs: results})
}

// acquire takes a worker slot, giving up when ctx ends first. The returned
// release must be called exactly once, after the tokenizer call returns.
func (h *handler) acquire(ctx context.Context, w http.ResponseWriter) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-ctx.Done():
		writeError(w, http.StatusServiceUnavailable, "no worker available before the request ended")
		return nil, false
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, attrs ...slog.Attr) {
	status, msg := statusFor(err)

	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("error", err.Error()))

	if status == http.StatusGatewayTimeout {
		h.log.WarnContext(r.Context(), "tokenize timed out", args...)
	} else {
		h.log.ErrorContext(r.Context(), "tokenize failed", args...)
	}

	writeError(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "tokenization timed out"
	case errors.Is(err, tokenizer.ErrInvalidText):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, tokenizer.ErrReleased), errors.Is(err, tokenizer.ErrNotAcquired):
		return http.StatusServiceUnavailable, "model is not available"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// callWithContext runs fn on its own goroutine and returns early when ctx
// ends. An abandoned native call still runs to completion and keeps its worker
// slot until then: release runs only after fn returns. Model.Free waits for it
// too.
func callWithContext[T any](ctx context.Context, release func(), fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	done := make(chan result, 1)
	go func() {
		defer release()

		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func parseTrim(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("trim")
	if raw == "" {
		return false, true
	}

	trim, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid trim value %q", raw))
		return false, false
	}

	return trim, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server: wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tok             tokenizer.Tokenizer
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a Server tokenizing with tok. The caller keeps ownership of
// the model behind tok and frees it after Start returns.
func New(cfg config.Config, tok tokenizer.Tokenizer) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		tok:             tok,
		logger:          slog.Default(),
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	if l != nil {
		s.logger = l
	}
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
// When Start returns no handler is running, so the model can be freed.
func (s *Server) Start(ctx context.Context) error {
	if s.tok == nil {
		return errors.New("server: nil tokenizer")
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithBatchWorkers(s.cfg.Batch.Workers),
		WithLogger(s.logger),
	}
	if s.cfg.Server.MaxTextBytes > 0 {
		handlerOpts = append(handlerOpts, WithMaxTextBytes(s.cfg.Server.MaxTextBytes))
	}
	if s.cfg.Server.MaxBatchTexts > 0 {
		handlerOpts = append(handlerOpts, WithMaxBatchTexts(s.cfg.Server.MaxBatchTexts))
	}
	if s.cfg.Server.RequestTimeout > 0 {
		handlerOpts = append(handlerOpts, WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second))
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           NewHandler(s.tok, handlerOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// Health is the body served by GET /health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ProbeHTTP checks GET /health on addr and returns the reported health. The
// probe is bounded by ctx.
func ProbeHTTP(ctx context.Context, addr string) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return Health{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Health{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("unexpected health status: %s", resp.Status)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health response: %w", err)
	}

	if h.Status != "ok" {
		return h, fmt.Errorf("server reports status %q", h.Status)
	}

	return h, nil
}
