package review

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	gh "github.com/google/go-github/v68/github"
	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/adapters"
	"github.com/sec-tools/iac-sentinel/pkg/guard"
	"github.com/sec-tools/iac-sentinel/pkg/models/api"
	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
	services "github.com/sec-tools/iac-sentinel/pkg/services/review"
	storereview "github.com/sec-tools/iac-sentinel/pkg/store/review"
)

const (
	serviceName    = "iac-sentinel"
	serviceVersion = "1.0.0"
)

type Handler struct {
	reviewer services.Orchestrator
	archive  storereview.Store
	secret   []byte
}

func NewHandler(reviewer services.Orchestrator, archive storereview.Store, webhookSecret string) *Handler {
	return &Handler{
		reviewer: reviewer,
		archive:  archive,
		secret:   []byte(webhookSecret),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, api.Health{
		Status:  "healthy",
		Service: serviceName,
		Version: serviceVersion,
	})
}

// GithubWebhook acks the delivery immediately; the review itself runs in
// the background and reports through commit statuses and the archive.
func (h *Handler) GithubWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		logger.Warn().Err(err).Msg("webhook signature rejected")
		writeJSON(ctx, w, http.StatusUnauthorized, api.WebhookAck{Status: "error", Message: "Invalid signature"})
		return
	}

	event, err := gh.ParseWebHook(gh.WebHookType(r), payload)
	if err != nil {
		logger.Warn().Err(err).Msg("webhook payload rejected")
		writeJSON(ctx, w, http.StatusBadRequest, api.WebhookAck{Status: "error", Message: "Unsupported payload"})
		return
	}

	pr, ok := event.(*gh.PullRequestEvent)
	if !ok || !reviewableAction(pr.GetAction()) {
		writeJSON(ctx, w, http.StatusOK, api.WebhookAck{
			Status:  "skipped",
			Message: "Event not relevant for security review",
		})
		return
	}

	req := changeRequest(pr)
	logger.Info().
		Int("review_id", req.Number).
		Str("action", pr.GetAction()).
		Str("delivery", guard.Sanitize(gh.DeliveryID(r))).
		Msg("security review initiated")

	// The request context dies with the response; the review keeps the
	// logger but not the cancellation.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		// failures are already reflected in the record and commit status
		_ = h.reviewer.Review(bgCtx, req)
	}()

	writeJSON(ctx, w, http.StatusOK, api.WebhookAck{
		Status:  "success",
		Message: "Security review initiated",
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		// non-numeric ids are indistinguishable from unknown ones
		writeJSON(ctx, w, http.StatusOK, api.StatusNotFound{Status: "not_found"})
		return
	}

	rec := h.reviewer.Status(id)
	if rec.Status == "" {
		writeJSON(ctx, w, http.StatusOK, api.StatusNotFound{Status: "not_found"})
		return
	}

	writeJSON(ctx, w, http.StatusOK, adapters.MapDomainReviewToAPI(rec))
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	records, err := h.archive.List(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list archived reviews")
		http.Error(w, "failed to list reviews", http.StatusInternalServerError)
		return
	}

	response := make([]api.ReviewSummary, 0, len(records))
	for _, rec := range records {
		response = append(response, adapters.MapStoreSummaryToAPI(rec))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func reviewableAction(action string) bool {
	return action == "opened" || action == "synchronize"
}

func changeRequest(event *gh.PullRequestEvent) domain.ChangeRequest {
	pr := event.GetPullRequest()
	return domain.ChangeRequest{
		Owner:   event.GetRepo().GetOwner().GetLogin(),
		Repo:    event.GetRepo().GetName(),
		Number:  pr.GetNumber(),
		HeadSHA: pr.GetHead().GetSHA(),
		HeadRef: pr.GetHead().GetRef(),
		BaseRef: pr.GetBase().GetRef(),
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}
