package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
	"github.com/mpkisan/kisan-ai/server/internal/auth"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
	"github.com/mpkisan/kisan-ai/server/internal/retry"
	"github.com/mpkisan/kisan-ai/server/usecase"
)

// LiveCalls accepts an authenticated websocket upgrade for a live voice call.
type LiveCalls interface {
	HandleWebSocket(c echo.Context, sessionID string, lang entities.Language) error
}

// Dependencies are the services the routes call into. Live may be nil, in
// which case live calls are refused.
type Dependencies struct {
	Advisor      *usecase.Advisor
	Conversation *usecase.ConversationService
	Live         LiveCalls
	Issuer       *auth.Issuer
	Metrics      *observability.Metrics
}

type handlers struct {
	deps   Dependencies
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handlers{deps: deps, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "kisan-ai-server",
		})
	})
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.GET("/districts", func(c echo.Context) error {
		return c.JSON(http.StatusOK, entities.Districts)
	})

	// Advisory
	v1.POST("/recommendations", h.recommend)
	v1.POST("/pest-analysis", h.analyzePests)
	v1.POST("/market-forecast", h.forecastMarket)
	v1.POST("/weather", h.weather)

	// Kisan Sahayak chat
	v1.POST("/chat", h.chat)
	v1.POST("/chat/voice", h.voiceChat)

	// Media studio
	v1.POST("/images", h.generateImage)
	v1.POST("/images/edit", h.editImage)
	v1.POST("/videos", h.generateVideo)
	v1.POST("/speech", h.synthesize)

	// Live voice
	v1.POST("/live/token", h.liveToken)
	e.GET("/ws/live", h.liveSocket)
}

// RequestLogger logs one line per request through zap.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogMethod:   true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request", fields...)
			return nil
		},
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

// respondError maps a service error to a status code. Caller mistakes are
// 4xx; anything that went wrong upstream is 5xx.
func (h *handlers) respondError(c echo.Context, capability string, err error) error {
	status, code := http.StatusBadGateway, "upstream_error"
	switch {
	case usecase.IsInvalidInput(err):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, usecase.ErrNotConfigured):
		status, code = http.StatusNotImplemented, "not_configured"
	case errors.Is(err, retry.ErrQuotaExhausted):
		status, code = http.StatusTooManyRequests, "quota_exhausted"
	case errors.Is(err, retry.ErrCredential), errors.Is(err, retry.ErrMissingCredential):
		status, code = http.StatusServiceUnavailable, "credential_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Advisory call failed",
			zap.String("capability", capability),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Warn("Advisory request rejected",
			zap.String("capability", capability),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func (h *handlers) recommend(c echo.Context) error {
	var req RecommendationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	rec, err := h.deps.Advisor.Recommend(c.Request().Context(), req.SoilSample, entities.ParseLanguage(req.Language))
	if err != nil {
		return h.respondError(c, "recommendation", err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *handlers) analyzePests(c echo.Context) error {
	var req PestAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	images := make([]entities.Part, 0, len(req.Images))
	for _, in := range req.Images {
		part, err := in.part()
		if err != nil {
			return badRequest(c, err.Error())
		}
		images = append(images, part)
	}
	diagnosis, err := h.deps.Advisor.AnalyzePests(c.Request().Context(), images, entities.ParseLanguage(req.Language))
	if err != nil {
		return h.respondError(c, "pest_analysis", err)
	}
	return c.JSON(http.StatusOK, diagnosis)
}

func (h *handlers) forecastMarket(c echo.Context) error {
	var req MarketForecastRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	forecast, err := h.deps.Advisor.ForecastMarket(c.Request().Context(), usecase.MarketQuery{
		Crop:     req.Crop,
		District: req.District,
		Mandis:   req.Mandis,
		Language: entities.ParseLanguage(req.Language),
	})
	if err != nil {
		return h.respondError(c, "market_forecast", err)
	}
	return c.JSON(http.StatusOK, forecast)
}

func (h *handlers) weather(c echo.Context) error {
	var req WeatherRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	snapshot, err := h.deps.Advisor.Weather(c.Request().Context(), req.District, entities.ParseLanguage(req.Language))
	if err != nil {
		return h.respondError(c, "weather", err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (h *handlers) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	reply, err := h.deps.Advisor.Chat(c.Request().Context(), usecase.ChatTurn{
		History:  req.History,
		Message:  req.Message,
		Language: entities.ParseLanguage(req.Language),
	})
	if err != nil {
		return h.respondError(c, "chat", err)
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *handlers) voiceChat(c echo.Context) error {
	if h.deps.Conversation == nil {
		return h.respondError(c, "voice_chat", usecase.ErrNotConfigured)
	}
	var req VoiceChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	recording, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return badRequest(c, "audio is not valid base64")
	}
	answer, err := h.deps.Conversation.Ask(c.Request().Context(), usecase.VoiceQuestion{
		Audio:      recording,
		SampleRate: req.SampleRate,
		Encoding:   req.Encoding,
		History:    req.History,
		Language:   entities.ParseLanguage(req.Language),
		Speak:      req.Speak,
	})
	if err != nil {
		return h.respondError(c, "voice_chat", err)
	}
	return c.JSON(http.StatusOK, VoiceChatResponse{Transcript: answer.Transcript, Reply: answer.Reply})
}

func (h *handlers) generateImage(c echo.Context) error {
	var req ImageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	media, err := h.deps.Advisor.GenerateImage(c.Request().Context(), usecase.ImagePrompt{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Size:        req.Size,
	})
	if err != nil {
		return h.respondError(c, "image_generate", err)
	}
	return c.JSON(http.StatusOK, newMediaResponse(media))
}

func (h *handlers) editImage(c echo.Context) error {
	var req ImageEditRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	image, err := req.Image.part()
	if err != nil {
		return badRequest(c, err.Error())
	}
	media, err := h.deps.Advisor.EditImage(c.Request().Context(), image, req.Prompt)
	if err != nil {
		return h.respondError(c, "image_edit", err)
	}
	return c.JSON(http.StatusOK, newMediaResponse(media))
}

func (h *handlers) generateVideo(c echo.Context) error {
	var req VideoRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	prompt := usecase.VideoPrompt{Prompt: req.Prompt, AspectRatio: req.AspectRatio}
	if req.Image != nil {
		seed, err := req.Image.part()
		if err != nil {
			return badRequest(c, err.Error())
		}
		prompt.Image = &seed
	}
	media, err := h.deps.Advisor.GenerateVideo(c.Request().Context(), prompt)
	if err != nil {
		return h.respondError(c, "video_generate", err)
	}
	return c.JSON(http.StatusOK, newMediaResponse(media))
}

func (h *handlers) synthesize(c echo.Context) error {
	var req SpeechRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest(c, "text is required")
	}
	speech, err := h.deps.Advisor.Synthesize(c.Request().Context(), req.Text)
	if err != nil {
		return h.respondError(c, "speech", err)
	}
	return c.JSON(http.StatusOK, SpeechResponse{Audio: speech, SampleRate: entities.PlaybackSampleRate})
}

func (h *handlers) liveToken(c echo.Context) error {
	if h.deps.Live == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "live_unavailable",
			Message: "Live voice calls are not available on this server",
		})
	}
	var req LiveTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	lang := entities.ParseLanguage(req.Language)
	token, sessionID, err := h.deps.Issuer.IssueLiveToken(string(lang))
	if err != nil {
		h.logger.Error("Failed to issue live token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate live session token",
		})
	}

	h.logger.Info("Live token issued",
		zap.String("sessionID", sessionID),
		zap.String("language", string(lang)))

	return c.JSON(http.StatusOK, LiveTokenResponse{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: time.Now().Add(h.deps.Issuer.TTL()),
	})
}

// liveSocket authenticates the upgrade. Browsers cannot set headers on a
// websocket handshake, so the token may also come as ?token=.
func (h *handlers) liveSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if authHeader := c.Request().Header.Get("Authorization"); token == "" && strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}

	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "Live session token is required",
		})
	}

	claims, err := h.deps.Issuer.ValidateToken(token)
	if err != nil {
		h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired live session token",
		})
	}

	if h.deps.Live == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "live_unavailable",
			Message: "Live voice calls are not available on this server",
		})
	}

	h.logger.Info("WebSocket connection authenticated",
		zap.String("sessionID", claims.ID),
		zap.String("language", claims.Language))

	return h.deps.Live.HandleWebSocket(c, claims.ID, entities.ParseLanguage(claims.Language))
}
