package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/enersight/services/telemetry/internal/pipeline"
	"example.com/enersight/services/telemetry/internal/tracing"
)

// TelemetryHandler exposes the polling pipeline over HTTP
type TelemetryHandler struct {
	pipeline *pipeline.Service
	tracer   tracing.Tracer
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(p *pipeline.Service, tracer tracing.Tracer) *TelemetryHandler {
	return &TelemetryHandler{
		pipeline: p,
		tracer:   tracer,
	}
}

// RegisterRoutes registers the handler's routes
func (h *TelemetryHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/companies/:companyID")
	group.POST("/consumption-summary", h.run("consumption-summary", h.pipeline.RunConsumptionSummary))
	group.POST("/daily-readings", h.run("daily-readings", h.pipeline.RunDailyReadings))
	group.POST("/epimp-history", h.run("epimp-history", h.pipeline.RunEpimpHistory))
	group.POST("/fp-readings", h.run("fp-readings", h.pipeline.RunPowerFactorReadings))
	group.POST("/monthly-readings", h.run("monthly-readings", h.pipeline.RunMonthlyReadings))
	group.POST("/odometer-readings", h.run("odometer-readings", h.pipeline.RunOdometerReadings))

	router.POST("/meters/:meterID/device-descriptions", h.SyncDeviceDescriptions)
}

// run wraps one pipeline operation as a gin handler
func (h *TelemetryHandler) run(name string, op func(ctx context.Context, companyID string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := h.tracer.StartTransaction("api-" + name)
		defer h.tracer.EndTransaction(txn)

		companyID := c.Param("companyID")
		h.tracer.AddAttribute(txn, "company_id", companyID)

		err := op(c.Request.Context(), companyID)
		if err != nil {
			log.Error().Err(err).Str("operation", name).Str("company_id", companyID).Msg("Pipeline run failed")
			h.tracer.RecordError(txn, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"result": "OK"})
	}
}

// SyncDeviceDescriptions refreshes device descriptions from the meter's
// controller
func (h *TelemetryHandler) SyncDeviceDescriptions(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-sync-device-descriptions")
	defer h.tracer.EndTransaction(txn)

	meterID, err := uuid.Parse(c.Param("meterID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meter id"})
		return
	}
	h.tracer.AddAttribute(txn, "meter_id", meterID.String())

	if err := h.pipeline.SyncDeviceDescriptions(c.Request.Context(), meterID); err != nil {
		log.Error().Err(err).Str("meter_id", meterID.String()).Msg("Device description sync failed")
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": "OK"})
}

// respondError maps pipeline failures onto the wire. Escalated run
// failures carry their own status and message; anything else is opaque.
func respondError(c *gin.Context, err error) {
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		c.JSON(runErr.Status, gin.H{"status": runErr.Status, "message": runErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
