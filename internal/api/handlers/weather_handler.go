package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/enersight/services/telemetry/internal/tracing"
	"example.com/enersight/services/telemetry/internal/weather"
)

// WeatherHandler proxies current-conditions lookups
type WeatherHandler struct {
	weather *weather.Client
	tracer  tracing.Tracer
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(client *weather.Client, tracer tracing.Tracer) *WeatherHandler {
	return &WeatherHandler{
		weather: client,
		tracer:  tracer,
	}
}

// RegisterRoutes registers the handler's routes
func (h *WeatherHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/weather", h.Current)
}

// Current returns current conditions for a coordinate pair
func (h *WeatherHandler) Current(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-weather")
	defer h.tracer.EndTransaction(txn)

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat"})
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lon"})
		return
	}

	conditions, err := h.weather.Current(c.Request.Context(), lat, lon)
	if err != nil {
		log.Error().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("Weather lookup failed")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadGateway, gin.H{"status": http.StatusBadGateway, "message": "weather provider unavailable"})
		return
	}

	c.JSON(http.StatusOK, conditions)
}
