package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/civitasgis/ageo-edge/internal/intercept"
	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/civitasgis/ageo-edge/internal/upstream"
)

// queuedMessage matches the wording the portal UI shows for a deferred
// submission.
const queuedMessage = "Formulario guardado offline. Se sincronizará automáticamente."

func submissionQueuedResponse(id string) types.SubmissionResponse {
	return types.SubmissionResponse{Success: true, Offline: true, ID: id, Message: queuedMessage}
}

func submissionDeliveredResponse() types.SubmissionResponse {
	return types.SubmissionResponse{Success: true}
}

// Forwarder relays a request to the upstream portal unchanged.
type Forwarder interface {
	Forward(ctx context.Context, r *http.Request, body io.Reader) (*http.Response, error)
}

// Gateway is the catch-all portal surface. GET reads go through the cache
// policy, writes to submission paths go through the interceptor, and
// anything else, HEAD included, is proxied straight upstream.
type Gateway struct {
	interceptor *intercept.Interceptor
	policy      http.Handler
	upstream    Forwarder
	submitPaths []string
	logger      *slog.Logger
}

// NewGateway builds the catch-all handler. submitPaths are the portal
// endpoints whose POSTs are captured for offline durability.
func NewGateway(ic *intercept.Interceptor, policy http.Handler, fw Forwarder, submitPaths []string, logger *slog.Logger) *Gateway {
	return &Gateway{
		interceptor: ic,
		policy:      policy,
		upstream:    fw,
		submitPaths: submitPaths,
		logger:      logger.With("component", "gateway"),
	}
}

func (g *Gateway) isSubmissionPath(path string) bool {
	for _, p := range g.submitPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet:
		// Only GET is cacheable. A HEAD answer has no body, so letting it
		// into the policy would store empty entries under the GET key.
		g.policy.ServeHTTP(w, r)
	case r.Method == http.MethodPost && g.isSubmissionPath(r.URL.Path):
		g.handleSubmission(w, r)
	default:
		g.proxy(w, r)
	}
}

// handleSubmission captures a portal write through the interceptor. The
// caller always learns which of the three outcomes happened: delivered,
// queued for later, or rejected.
func (g *Gateway) handleSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := intercept.FromRequest(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Malformed submission body")
		return
	}

	result, err := g.interceptor.Submit(r.Context(), sub)
	if err != nil {
		var appErr *upstream.AppError
		if errors.As(err, &appErr) {
			// The portal itself rejected the data. Relay its verdict.
			w.WriteHeader(appErr.StatusCode)
			io.WriteString(w, appErr.Body)
			return
		}
		g.logger.Error("submission failed", "url", sub.URL, "error", err)
		MapStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Queued {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(submissionQueuedResponse(result.RecordID))
		return
	}
	json.NewEncoder(w).Encode(submissionDeliveredResponse())
}

// proxy relays a request that the edge has no policy for.
func (g *Gateway) proxy(w http.ResponseWriter, r *http.Request) {
	resp, err := g.upstream.Forward(r.Context(), r, r.Body)
	if err != nil {
		g.logger.Warn("proxy failed", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Portal unreachable")
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		g.logger.Warn("proxy copy failed", "path", r.URL.Path, "error", err)
	}
}
