// Package httpapi implements the HTTP handlers for the swipe service.
//
// All routes except /health and /metrics expect an x-user-id header
// forwarded by the Gateway; admin routes additionally require
// x-user-role: admin.
//
// Routes:
//
//	GET  /feed                              → ranked feed for the seeker
//	GET  /saved                             → the seeker's saved postings
//	POST /jobs/{id}/decision                → apply | pass | save | unsave
//	POST /jobs/{id}/save                    → toggle saved state
//	GET  /profile, PUT /profile             → candidate profile
//	GET  /employer/jobs                     → employer's own postings
//	POST /employer/jobs                     → create a posting
//	POST /employer/jobs/{id}/{op}           → submit | pause | resume | close
//	GET  /admin/jobs/pending                → moderation queue
//	POST /admin/jobs/{id}/moderate          → approve or reject
//	GET  /applications                      → list applications
//	POST /applications/{id}/move            → employer kanban move
//	POST /applications/{id}/withdraw        → applicant withdrawal
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"jobmate/swipe-service/internal/decision"
	"jobmate/swipe-service/internal/feed"
	"jobmate/swipe-service/internal/match"
	"jobmate/swipe-service/internal/model"
	"jobmate/swipe-service/internal/port"
	"jobmate/swipe-service/internal/store/resilient"
	"jobmate/swipe-service/internal/swipe"
)

const (
	headerUserID   = "x-user-id"
	headerUserRole = "x-user-role"
	roleAdmin      = "admin"
	maxFeedLimit   = 100
)

// ─── Response types ───────────────────────────────────────────────────────────

// Card is one feed entry as returned to clients.
type Card struct {
	Job       model.JobPosting `json:"job"`
	Score     int              `json:"score"`
	Breakdown match.Breakdown  `json:"breakdown"`
	IsSaved   bool             `json:"isSaved"`
}

// FeedResponse is the JSON shape of GET /feed and the employer/admin lists.
// EmptyState is "no_jobs", "all_decided" or empty.
type FeedResponse struct {
	Items      []Card `json:"items"`
	Total      int    `json:"total"`
	Visible    int    `json:"visible"`
	Remaining  int    `json:"remaining"`
	EmptyState string `json:"emptyState,omitempty"`
}

// DecisionResponse is the JSON shape of POST /jobs/{id}/decision.
type DecisionResponse struct {
	JobID          string             `json:"jobId"`
	Action         model.Action       `json:"action"`
	IsSaved        bool               `json:"isSaved"`
	AlreadyApplied bool               `json:"alreadyApplied"`
	Application    *model.Application `json:"application,omitempty"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Options carries the optional collaborators of a Handler.
type Options struct {
	Limiter *LimiterManager
	Metrics *Metrics
	// Healthy reports storage health for /health; nil means always healthy.
	Healthy func() bool
	Version string
}

// Handler holds shared dependencies.
type Handler struct {
	svc     *swipe.Service
	log     *zap.Logger
	limiter *LimiterManager
	metrics *Metrics
	healthy func() bool
	version string
}

// NewHandler returns a configured Handler.
func NewHandler(svc *swipe.Service, log *zap.Logger, opts Options) *Handler {
	return &Handler{
		svc:     svc,
		log:     log,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		healthy: opts.Healthy,
		version: opts.Version,
	}
}

// RegisterRoutes mounts all swipe-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", h.metrics.Handler())

	h.route(mux, "GET /feed", h.getFeed)
	h.route(mux, "GET /saved", h.getSaved)
	h.route(mux, "POST /jobs/{id}/decision", h.decide)
	h.route(mux, "POST /jobs/{id}/save", h.toggleSave)
	h.route(mux, "GET /profile", h.getProfile)
	h.route(mux, "PUT /profile", h.putProfile)

	h.route(mux, "GET /employer/jobs", h.employerJobs)
	h.route(mux, "POST /employer/jobs", h.createJob)
	h.route(mux, "POST /employer/jobs/{id}/{op}", h.jobLifecycle)

	h.route(mux, "GET /admin/jobs/pending", h.admin(h.moderationQueue))
	h.route(mux, "POST /admin/jobs/{id}/moderate", h.admin(h.moderate))

	h.route(mux, "GET /applications", h.listApplications)
	h.route(mux, "POST /applications/{id}/move", h.moveApplication)
	h.route(mux, "POST /applications/{id}/withdraw", h.withdrawApplication)
}

func (h *Handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, h.instrument(pattern, h.rateLimit(fn)))
}

// admin rejects callers without the admin role.
func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserRole) != roleAdmin {
			jsonError(w, "admin role required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// ─── Seeker handlers ──────────────────────────────────────────────────────────

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filters, err := feed.ParseQuery(q)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}
	if limit == 0 || limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	fd, err := h.svc.Feed(r.Context(), userID, swipe.FeedRequest{Filters: filters, Limit: limit})
	if err != nil {
		h.serviceError(w, "getFeed", err)
		return
	}
	jsonOK(w, toFeedResponse(fd))
}

func (h *Handler) getSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	jobs, err := h.svc.SavedJobs(r.Context(), userID)
	if err != nil {
		h.serviceError(w, "getSaved", err)
		return
	}
	jsonOK(w, jobs)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" {
		jsonError(w, "body must contain action", http.StatusBadRequest)
		return
	}
	action, err := model.ParseAction(body.Action)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID := r.PathValue("id")
	out, err := h.svc.Decide(r.Context(), userID, jobID, action)
	if err != nil {
		h.metrics.decision(string(action), decisionOutcome(err))
		h.serviceError(w, "decide", err)
		return
	}
	outcome := "ok"
	if out.AlreadyApplied {
		outcome = "already_applied"
	}
	h.metrics.decision(string(action), outcome)

	jsonOK(w, DecisionResponse{
		JobID:          jobID,
		Action:         out.Action,
		IsSaved:        out.IsSaved,
		AlreadyApplied: out.AlreadyApplied,
		Application:    out.Application,
	})
}

func decisionOutcome(err error) string {
	var ve *swipe.ValidationError
	switch {
	case errors.Is(err, decision.ErrConflict):
		return "conflict"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, swipe.ErrNotFound):
		return "not_found"
	}
	return "error"
}

func (h *Handler) toggleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	jobID := r.PathValue("id")
	isSaved, err := h.svc.ToggleSave(r.Context(), userID, jobID)
	if err != nil {
		h.serviceError(w, "toggleSave", err)
		return
	}
	jsonOK(w, map[string]any{"jobId": jobID, "isSaved": isSaved})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		h.serviceError(w, "getProfile", err)
		return
	}
	jsonOK(w, p)
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var p model.CandidateProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	p.ID = userID
	if err := h.svc.UpsertProfile(r.Context(), &p); err != nil {
		h.serviceError(w, "putProfile", err)
		return
	}
	jsonOK(w, p)
}

// ─── Employer handlers ────────────────────────────────────────────────────────

func (h *Handler) employerJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	fd, err := h.svc.EmployerJobs(r.Context(), userID)
	if err != nil {
		h.serviceError(w, "employerJobs", err)
		return
	}
	jsonOK(w, toFeedResponse(fd))
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		model.JobPosting
		Submit bool `json:"submit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	j, err := h.svc.CreateJob(r.Context(), userID, body.JobPosting, body.Submit)
	if err != nil {
		h.serviceError(w, "createJob", err)
		return
	}
	jsonCreated(w, j)
}

func (h *Handler) jobLifecycle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	jobID, op := r.PathValue("id"), r.PathValue("op")
	var (
		j   *model.JobPosting
		err error
	)
	switch op {
	case "submit":
		j, err = h.svc.SubmitJob(r.Context(), userID, jobID)
	case "pause":
		j, err = h.svc.PauseJob(r.Context(), userID, jobID)
	case "resume":
		j, err = h.svc.ResumeJob(r.Context(), userID, jobID)
	case "close":
		j, err = h.svc.CloseJob(r.Context(), userID, jobID)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", op), http.StatusNotFound)
		return
	}
	if err != nil {
		h.serviceError(w, "jobLifecycle", err)
		return
	}
	jsonOK(w, j)
}

// ─── Admin handlers ───────────────────────────────────────────────────────────

func (h *Handler) moderationQueue(w http.ResponseWriter, r *http.Request) {
	fd, err := h.svc.ModerationQueue(r.Context())
	if err != nil {
		h.serviceError(w, "moderationQueue", err)
		return
	}
	jsonOK(w, toFeedResponse(fd))
}

func (h *Handler) moderate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approve *bool  `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approve == nil {
		jsonError(w, "body must contain approve", http.StatusBadRequest)
		return
	}
	j, err := h.svc.ModerateJob(r.Context(), r.PathValue("id"), *body.Approve, body.Reason)
	if err != nil {
		h.serviceError(w, "moderate", err)
		return
	}
	jsonOK(w, j)
}

// ─── Application handlers ─────────────────────────────────────────────────────

// listApplications returns the caller's applications as applicant, or with
// ?role=employer the applications received on their postings, optionally
// narrowed by ?jobId=.
func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := port.ApplicationFilter{JobID: q.Get("jobId")}
	switch q.Get("role") {
	case "", "seeker":
		filter.ApplicantID = userID
	case "employer":
		filter.EmployerID = userID
	default:
		jsonError(w, "role must be seeker or employer", http.StatusBadRequest)
		return
	}

	apps, err := h.svc.ListApplications(r.Context(), filter)
	if err != nil {
		h.serviceError(w, "listApplications", err)
		return
	}
	jsonOK(w, apps)
}

func (h *Handler) moveApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		NewStatus string `json:"newStatus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewStatus == "" {
		jsonError(w, "body must contain newStatus", http.StatusBadRequest)
		return
	}
	app, err := h.svc.MoveApplication(r.Context(), userID, r.PathValue("id"), body.NewStatus)
	if err != nil {
		h.serviceError(w, "moveApplication", err)
		return
	}
	jsonOK(w, app)
}

func (h *Handler) withdrawApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	app, err := h.svc.WithdrawApplication(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.serviceError(w, "withdrawApplication", err)
		return
	}
	jsonOK(w, app)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.healthy != nil && !h.healthy() {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "service": "swipe-service", "version": h.version,
		})
		return
	}
	jsonOK(w, map[string]string{"status": "ok", "service": "swipe-service", "version": h.version})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// serviceError maps domain errors to HTTP status codes. Unexpected errors
// are logged and reported as 500 without detail.
func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	var ve *swipe.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.Is(err, feed.ErrInvalidFilter):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, swipe.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, decision.ErrConflict):
		jsonError(w, err.Error(), http.StatusConflict)
	case resilient.IsUnavailable(err):
		jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		h.log.Error("request failed", zap.String("op", op), zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func toFeedResponse(fd feed.Feed) FeedResponse {
	resp := FeedResponse{
		Items:     make([]Card, 0, len(fd.Items)),
		Total:     fd.Total,
		Visible:   fd.Visible,
		Remaining: fd.Remaining,
	}
	for _, it := range fd.Items {
		resp.Items = append(resp.Items, Card{Job: it.Job, Score: it.Score, Breakdown: it.Breakdown, IsSaved: it.IsSaved})
	}
	switch {
	case fd.NoJobs():
		resp.EmptyState = "no_jobs"
	case fd.AllDecided():
		resp.EmptyState = "all_decided"
	}
	return resp
}

func jsonOK(w http.ResponseWriter, v any) { jsonResponse(w, http.StatusOK, v) }

func jsonCreated(w http.ResponseWriter, v any) { jsonResponse(w, http.StatusCreated, v) }

func jsonResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonResponse(w, code, map[string]string{"error": msg})
}
