package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/bestsellers/internal/bestsellers"
	appmw "github.com/briangreenhill/bestsellers/internal/http/middleware"
	"github.com/briangreenhill/bestsellers/nyt"
)

type Server struct {
	Router  *chi.Mux
	Gateway *bestsellers.Gateway
}

type ServerOptions struct {
	Gateway *bestsellers.Gateway
	Logger  zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(appmw.RequestID)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Gateway: opts.Gateway}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/best-sellers/history", s.handleHistory)
		api.Get("/cache/stats", s.handleCacheStats)
	})

	return s
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	values, err := queryValues(r.URL.RawQuery)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := parseQuery(values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := s.Gateway.History(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write history response")
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st := s.Gateway.Stats()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"counters": st.Snapshot(),
		"hit_rate": st.HitRate(),
	})
}

// queryValues parses a raw query string keeping ';' as part of values.
// url.ParseQuery drops any pair containing an unescaped ';', which would
// silently lose a semicolon-joined isbn filter.
func queryValues(raw string) (url.Values, error) {
	v, err := url.ParseQuery(strings.ReplaceAll(raw, ";", "%3B"))
	if err != nil {
		ve := &bestsellers.ValidationError{}
		ve.Add("query", "The query string is malformed.")
		return nil, ve
	}
	return v, nil
}

// parseQuery reads author, title, offset and isbn. ISBNs may be repeated
// (isbn=a&isbn=b), bracketed (isbn[]=a) or semicolon-joined (isbn=a;b).
// Blank values count as absent.
func parseQuery(v url.Values) (bestsellers.Query, error) {
	q := bestsellers.Query{
		Author: strings.TrimSpace(v.Get("author")),
		Title:  strings.TrimSpace(v.Get("title")),
	}

	for _, raw := range append(v["isbn"], v["isbn[]"]...) {
		for _, s := range strings.Split(raw, ";") {
			if s = strings.TrimSpace(s); s != "" {
				q.ISBN = append(q.ISBN, s)
			}
		}
	}

	if raw := strings.TrimSpace(v.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ve := &bestsellers.ValidationError{}
			ve.Add("offset", "The offset must be an integer.")
			return q, ve
		}
		q.Offset = &n
	}

	return q, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := hlog.FromRequest(r)

	var ve *bestsellers.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{
			"message": "Invalid request parameters",
			"errors":  ve.Fields,
		})
		return
	}

	var ue *nyt.Error
	if errors.As(err, &ue) && nyt.IsUpstream(err) {
		log.Error().Err(err).Str("kind", ue.Kind.String()).Int("status", ue.StatusCode).Msg("NYT API request failed")
		writeJSON(w, r, http.StatusBadGateway, map[string]any{
			"status":     "ERROR",
			"message":    "NYT API request failed",
			"error_code": ue.StatusCode,
		})
		return
	}

	log.Error().Err(err).Msg("NYT API error")
	writeJSON(w, r, http.StatusInternalServerError, map[string]any{
		"status":  "ERROR",
		"message": "An error occurred while processing your request",
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}
