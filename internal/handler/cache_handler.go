package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/voicereply/voice-service/internal/audiocache"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// CacheHandler exposes the audio cache maintenance surface
type CacheHandler struct {
	cache *audiocache.Cache
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cache *audiocache.Cache) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// GetCacheStats reports entry count and total size
func (h *CacheHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":       true,
		"count":         stats.Count,
		"total_size_mb": stats.TotalSizeMB,
	})
}

// PurgeCache drops expired entries and enforces the size cap
func (h *CacheHandler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	expired, err := h.cache.PurgeExpired(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	evicted, err := h.cache.EnforceSizeCap(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Base().Info("cache purge completed",
		zap.Int("expired", expired),
		zap.Int("evicted", evicted))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expired": expired,
		"evicted": evicted,
	})
}

// SetupCacheRoutes sets up cache maintenance routes
func (h *CacheHandler) SetupCacheRoutes(router *mux.Router) {
	router.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
	router.HandleFunc("/cache/purge", h.PurgeCache).Methods("POST")

	logger.Base().Info("cache routes registered")
}
