package handlers

import (
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/aegisgate/aegisgate/gateway"
	"github.com/aegisgate/aegisgate/internal/ctxkeys"
	"github.com/aegisgate/aegisgate/ratelimit"
	"github.com/aegisgate/aegisgate/types"
)

// ChatHandler serves the OpenAI-compatible chat-completions endpoint.
type ChatHandler struct {
	pipeline *gateway.Pipeline
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

// NewChatHandler creates the chat-completions handler.
func NewChatHandler(pipeline *gateway.Pipeline, limiter *ratelimit.Limiter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		pipeline: pipeline,
		limiter:  limiter,
		logger:   logger,
	}
}

// HandleCompletion processes one chat-completions request: rate limit,
// strict validation, then the guardrail pipeline. The upstream response is
// passed through verbatim.
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := ctxkeys.RequestID(ctx)
	clientID := ctxkeys.ClientID(ctx)

	// Rate limiting short-circuits before any guardrail work.
	key := ratelimit.KeyFor(clientID, remoteIP(r))
	if decision := h.limiter.Allow(ctx, key); !decision.Allowed {
		retryAfter := int(decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		payload := types.NewErrorPayload(
			types.CodeRateLimitExceeded,
			types.ErrorTypeRateLimit,
			"Rate limit exceeded. Please retry later.",
		).WithRequestID(requestID)
		WriteErrorPayload(w, http.StatusTooManyRequests, payload, h.logger)
		return
	}

	var req types.ChatCompletionsRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		payload := types.NewErrorPayload(
			types.CodeValidationError,
			types.ErrorTypeInvalidRequest,
			"Invalid request payload.",
		).WithRequestID(requestID)
		if cause, ok := err.(*types.Error); ok && cause.Cause != nil {
			payload.Error.Details = cause.Cause.Error()
		}
		WriteErrorPayload(w, http.StatusBadRequest, payload, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		verr := err.(*types.Error)
		payload := types.NewErrorPayload(
			types.CodeValidationError,
			types.ErrorTypeInvalidRequest,
			verr.Message,
		).WithParam(verr.Param).WithRequestID(requestID)
		WriteErrorPayload(w, http.StatusBadRequest, payload, h.logger)
		return
	}

	status, body := h.pipeline.Process(ctx, &req, requestID, clientID)
	WriteRaw(w, status, body)
}

// remoteIP extracts the caller's address for the rate-limit key.
func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
