// Package server exposes a datastore over HTTP for browsing and editing documents.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/docmap"
	"github.com/conduit-lang/docmap/pkg/document"
	"github.com/conduit-lang/docmap/pkg/store"
)

// maxBodyBytes bounds uploaded documents
const maxBodyBytes = 16 << 20

// Server serves the raw documents of a datastore
type Server struct {
	ds     *docmap.Datastore
	logger *zap.Logger
	mux    chi.Router
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server over ds
func New(ds *docmap.Datastore, opts ...Option) *Server {
	s := &Server{ds: ds, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/collections/{collection}", func(r chi.Router) {
		r.Get("/", s.handleBatch)
		r.Put("/", s.handlePut)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
	})
	s.mux = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := ParseID(chi.URLParam(r, "id"))

	doc, err := s.ds.FetchDocument(r.Context(), collection, id)
	if err != nil {
		s.renderError(w, err)
		return
	}
	renderDocument(w, doc)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	raw := r.URL.Query()["id"]
	if len(raw) == 0 {
		renderError(w, http.StatusBadRequest, "at least one id query parameter is required")
		return
	}
	ids := make([]document.Value, len(raw))
	for i, s := range raw {
		ids[i] = ParseID(s)
	}

	docs, err := s.ds.FetchDocuments(r.Context(), collection, ids)
	if err != nil {
		s.renderError(w, err)
		return
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, doc := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if doc == nil {
			buf.WriteString("null")
			continue
		}
		data, err := document.MarshalExtJSON(doc, false)
		if err != nil {
			s.renderError(w, err)
			return
		}
		buf.Write(data)
	}
	buf.WriteByte(']')

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		renderError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := document.UnmarshalExtJSON(body)
	if err != nil {
		renderError(w, http.StatusBadRequest, fmt.Sprintf("invalid extended JSON: %v", err))
		return
	}
	if err := s.ds.PutDocument(r.Context(), collection, doc); err != nil {
		s.renderError(w, err)
		return
	}
	id, _ := doc.Lookup(store.IDField)
	s.logger.Info("stored document", zap.String("collection", collection), zap.Stringer("id", id))
	renderDocument(w, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := ParseID(chi.URLParam(r, "id"))
	if err := s.ds.DeleteDocument(r.Context(), collection, id); err != nil {
		s.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ParseID converts a path identifier to its stored form: a 24 digit hex string is an
// ObjectID, a canonical UUID is a UUID, an integer is an int64 and anything else a string.
func ParseID(s string) document.Value {
	if oid, err := primitive.ObjectIDFromHex(s); err == nil {
		return document.ObjectID(oid)
	}
	if len(s) == 36 {
		if id, err := uuid.Parse(s); err == nil {
			return document.Binary(bson.TypeBinaryUUID, id[:])
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return document.Int64(n)
	}
	return document.String(s)
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case store.IsNotFound(err), store.IsCollectionMissing(err):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrMissingID), errors.Is(err, store.ErrInvalidCollection), docmap.IsInvalidDocument(err):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	renderError(w, status, err.Error())
}

func renderError(w http.ResponseWriter, status int, message string) {
	renderJSON(w, status, &ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderDocument(w http.ResponseWriter, doc *document.Document) {
	data, err := document.MarshalExtJSON(doc, false)
	if err != nil {
		renderError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
