package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"climbs/api/internal/metrics"
	"climbs/api/internal/moderation"
	"climbs/api/internal/record"
	"climbs/api/internal/submission"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	moderationHeader = "X-Moderation-Password"
	maxBodyBytes     = 1 << 20
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	trustProxy bool
	router     *mux.Router
	logger     *zap.Logger
}

// NewHTTPServer builds the router. With trustProxy the submission limiter
// keys on the first X-Forwarded-For hop instead of the peer address.
func NewHTTPServer(service *Service, corsOrigin string, trustProxy bool) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, trustProxy: trustProxy, logger: service.Logger()}
	s.router = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet)

	r.HandleFunc("/api/athletes", s.handleAthletes).Methods(http.MethodGet)
	r.HandleFunc("/api/athletes/{name}", s.handleAthlete).Methods(http.MethodGet)
	r.HandleFunc("/api/climbs", s.handleClimbs).Methods(http.MethodGet)
	r.HandleFunc("/api/ascents", s.handleAscents).Methods(http.MethodGet)
	r.HandleFunc("/api/views/climbs/{type}", s.handleClimbViews).Methods(http.MethodGet)
	r.HandleFunc("/api/views/athletes", s.handleAthleteViews).Methods(http.MethodGet)
	r.HandleFunc("/api/export", s.handleExport).Methods(http.MethodGet)

	r.HandleFunc("/api/submissions", s.handleSubmit).Methods(http.MethodPost)

	r.HandleFunc("/api/review", s.handleReview).Methods(http.MethodGet)
	r.HandleFunc("/api/review/ascents/{hash}", s.handleCanApprove).Methods(http.MethodGet)
	r.HandleFunc("/api/review/{kind}/{hash}/transitions", s.handleTransitions).Methods(http.MethodGet)
	r.HandleFunc("/api/review/approve", s.decisionHandler(record.DecisionApprove)).Methods(http.MethodPost)
	r.HandleFunc("/api/review/reject", s.decisionHandler(record.DecisionReject)).Methods(http.MethodPost)
	r.HandleFunc("/api/review/publish", s.handlePublish).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleReady fails only on the database. The submission limiter fails
// open, so a Redis outage is reported without taking the API out of
// rotation.
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{}
	ready := true
	if err := s.service.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}
	if checked, err := s.service.PingLimiter(ctx); checked {
		if err != nil {
			s.logger.Warn("redis readiness check failed", zap.Error(err))
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "status": "not_ready", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready", "checks": checks})
}

func (s *HTTPServer) handleAthletes(w http.ResponseWriter, r *http.Request) {
	athletes, err := s.service.Athletes(r.Context(), record.Filter{Name: r.URL.Query().Get("name")})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"athletes": athletes})
}

func (s *HTTPServer) handleAthlete(w http.ResponseWriter, r *http.Request) {
	athlete, err := s.service.FindAthlete(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"athlete": athlete})
}

func (s *HTTPServer) handleClimbs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := record.Filter{Name: query.Get("name")}
	if raw := query.Get("type"); raw != "" {
		climbType, ok := record.ParseClimbType(raw)
		if !ok {
			s.fail(w, r, record.BadRequest("climb type must be sport or boulder"))
			return
		}
		filter.ClimbType = climbType
	}
	climbs, err := s.service.Climbs(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"climbs": climbs})
}

func (s *HTTPServer) handleAscents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ascents, err := s.service.Ascents(r.Context(), record.Filter{
		Climb:   query.Get("climb"),
		Athlete: query.Get("athlete"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ascents": ascents})
}

func (s *HTTPServer) handleClimbViews(w http.ResponseWriter, r *http.Request) {
	views, err := s.service.ClimbsWithAscents(r.Context(), mux.Vars(r)["type"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"climbs": views})
}

func (s *HTTPServer) handleAthleteViews(w http.ResponseWriter, r *http.Request) {
	views, err := s.service.AthletesWithAscents(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"athletes": views})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.service.Export(r.Context())
	metrics.ObserveExport("download", resultLabel(err))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset.FileName()))
	writeJSON(w, http.StatusOK, dataset)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	client := clientAddress(r, s.trustProxy)
	limit := s.service.Throttle(r.Context(), client)
	if !limit.Allowed {
		metrics.ObserveSubmission("throttled")
		seconds := int(limit.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many submissions, try again later", map[string]any{
			"retry_after_seconds": seconds,
		})
		return
	}

	sub, err := decodeSubmission(r)
	if err != nil {
		metrics.ObserveSubmission(resultLabel(err))
		s.fail(w, r, err)
		return
	}
	receipt, err := s.service.Submit(r.Context(), sub)
	metrics.ObserveSubmission(resultLabel(err))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":      true,
		"message": "Submission received and awaiting review",
		"receipt": receipt,
	})
}

func (s *HTTPServer) handleReview(w http.ResponseWriter, r *http.Request) {
	queue, err := s.service.Pending(r.Context(), r.Header.Get(moderationHeader))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": queue, "count": queue.Len()})
}

func (s *HTTPServer) handleCanApprove(w http.ResponseWriter, r *http.Request) {
	verdict, err := s.service.CanApprove(r.Context(), r.Header.Get(moderationHeader), mux.Vars(r)["hash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *HTTPServer) handleTransitions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transitions, err := s.service.Transitions(r.Context(), r.Header.Get(moderationHeader), vars["kind"], vars["hash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

func (s *HTTPServer) decisionHandler(decision record.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Kind     string `json:"kind"`
			Table    string `json:"table"`
			Hash     string `json:"hash"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		kind := body.Kind
		if kind == "" {
			kind = body.Table
		}
		credential := body.Password
		if credential == "" {
			credential = r.Header.Get(moderationHeader)
		}

		confirmation, err := s.service.Decide(r.Context(), moderation.Request{
			Kind:       kind,
			Hash:       body.Hash,
			Decision:   string(decision),
			Credential: credential,
		})
		metrics.ObserveDecision(kindLabel(kind), string(decision), resultLabel(err))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "decision": confirmation})
	}
}

// kindLabel bounds the decision metric to the known kinds.
func kindLabel(raw string) string {
	if kind, ok := record.ParseKind(raw); ok {
		return string(kind)
	}
	return "unknown"
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	credential := body.Password
	if credential == "" {
		credential = r.Header.Get(moderationHeader)
	}
	location, err := s.service.Publish(r.Context(), credential)
	metrics.ObserveExport("object_storage", resultLabel(err))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "location": location})
}

// fail writes the error envelope. Typed failures are logged at Info, the
// rest at Error.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	fields := []zap.Field{
		zap.String("request_id", requestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("code", code),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("request rejected", append(fields, zap.String("error", message))...)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		elapsed := time.Since(started)
		metrics.ObserveRequest(r.Method, s.routeTemplate(r), writer.status, elapsed)
		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

// routeTemplate keeps metric labels bounded by reporting the matched
// pattern instead of the raw path.
func (s *HTTPServer) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.Route != nil {
		if template, err := match.Route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+moderationHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// decodeSubmission accepts the submit form either as JSON or as a url-encoded
// or multipart form using the same field names.
func decodeSubmission(r *http.Request) (submission.AscentSubmission, error) {
	var sub submission.AscentSubmission
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
				return sub, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
			}
		} else if err := r.ParseForm(); err != nil {
			return sub, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
		}
		return submissionFromForm(r.PostForm)
	default:
		if err := decodeBody(r, &sub); err != nil {
			return sub, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return sub, nil
	}
}

func submissionFromForm(form map[string][]string) (submission.AscentSubmission, error) {
	get := func(key string) string {
		if values := form[key]; len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
		return ""
	}
	sub := submission.AscentSubmission{
		AthleteName:     get("athleteName"),
		ClimbName:       get("climbName"),
		DateOfAscent:    get("dateOfAscent"),
		WebLink:         get("webLink"),
		Nationality:     get("nationality"),
		Gender:          get("gender"),
		ClimbType:       get("climbType"),
		Grade:           get("grade"),
		LocationCountry: get("locationCountry"),
		LocationArea:    get("locationArea"),
	}
	if raw := get("yearOfBirth"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return sub, record.ValidationError("Year of birth must be a number")
		}
		sub.YearOfBirth = &year
	}
	if raw := get("locationLatitude"); raw != "" {
		latitude, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sub, record.ValidationError("Latitude must be between -90 and 90")
		}
		sub.LocationLatitude = &latitude
	}
	if raw := get("locationLongitude"); raw != "" {
		longitude, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sub, record.ValidationError("Longitude must be between -180 and 180")
		}
		sub.LocationLongitude = &longitude
	}
	return sub, nil
}

// clientAddress keys the submission limiter. X-Forwarded-For is only read
// when the server sits behind a trusted proxy.
func clientAddress(r *http.Request, trustProxy bool) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); trustProxy && forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
