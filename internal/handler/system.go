package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kristoman/standardgpt/internal/config"
	"github.com/kristoman/standardgpt/internal/logger"
)

// SystemHandler reports which backends the running process is configured
// with. Adapted from the teacher's SystemHandler.GetSystemInfo — same
// single-endpoint shape, rewritten to describe this system's own
// collaborators (search/embedding/rate-limit backends) instead of the
// teacher's Neo4j/MinIO reachability checks, which have no home in this
// domain.
type SystemHandler struct {
	cfg *config.Config
}

// NewSystemHandler constructs a SystemHandler.
func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// SystemInfoResponse is the GET /api/system/info payload.
type SystemInfoResponse struct {
	SearchBackend      string `json:"search_backend"`
	EmbeddingEndpoint  string `json:"embedding_endpoint_configured"`
	KeepaliveEnabled   bool   `json:"embedding_keepalive_enabled"`
	ChatModel          string `json:"chat_model"`
	RateLimitBackend   string `json:"rate_limit_backend"`
}

// GetSystemInfo handles GET /api/system/info.
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	ctx := logger.CloneContext(c.Request.Context())

	driver := h.cfg.VectorDatabase.Driver
	if driver == "" {
		driver = "elasticsearch"
	}

	rateLimitBackend := "in-process"
	if h.cfg.RateLimit.StorageURL != "" {
		rateLimitBackend = "redis"
	}

	resp := SystemInfoResponse{
		SearchBackend:     driver,
		EmbeddingEndpoint: boolLabel(h.cfg.Embedding.APIEndpoint != ""),
		KeepaliveEnabled:  h.cfg.Embedding.KeepaliveEnabled,
		ChatModel:         h.cfg.OpenAI.ModelDefault,
		RateLimitBackend:  rateLimitBackend,
	}

	logger.Info(ctx, "system info retrieved")
	c.JSON(200, resp)
}

func boolLabel(b bool) string {
	if b {
		return "configured"
	}
	return "unconfigured"
}
