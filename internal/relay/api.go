// Exposes all of the REST APIs related to the telemetry relay in CareCast.

package relay

import (
	"CareCast/internal/entity"
	"CareCast/internal/errors"
	"CareCast/pkg/log"
	"CareCast/pkg/middlewares"
	"io"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/gin-gonic/gin"
)

// Registers all of the REST API handlers related to internal package relay onto the gin server.
func APIHandlers(router *gin.Engine, service Service, relayRepo Repository, sseConn gin.HandlerFunc, logger log.Logger) {
	router.GET("/status", status(service, relayRepo, logger))
	router.POST("/upload-game-data", uploadGameData(service, relayRepo, logger))
	router.GET("/get-game-data", getGameData(relayRepo, logger))
	router.DELETE("/clear-game-data", clearGameData(service, relayRepo, logger))
	router.GET("/stream", middlewares.SSEMiddleware(), sseConn, stream(service, logger))
}

// status returns a handler reporting relay health, used by game clients as
// their reachability probe.
func status(service Service, relayRepo Repository, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		total, dberr := relayRepo.Count(gctx, logger)
		if dberr != nil {
			gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
			return
		}
		gctx.JSON(http.StatusOK, gin.H{
			"status":             "running",
			"connectedObservers": service.ClientCount(),
			"totalRecords":       total,
			"serverTime":         service.Clock().Now().UTC().Format(time.RFC3339),
		})
	}
}

// uploadGameData is the relay's single ingress endpoint: one upload per
// request, appended to the log and pushed to every open observer stream.
func uploadGameData(service Service, relayRepo Repository, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		var upload entity.GameUpload
		if binderr := gctx.ShouldBindJSON(&upload); binderr != nil {
			logger.WithCtx(gctx).Error().Err(binderr).Msg("Couldn't decode upload payload in relay.uploadGameData")
			gctx.JSON(http.StatusBadRequest, errors.BadRequest("Malformed upload payload"))
			return
		}
		// Only the mandatory fields are enforced, anything extra is stored as-is
		if _, valerr := govalidator.ValidateStruct(upload); valerr != nil {
			valerrs, ok := valerr.(govalidator.Errors)
			if !ok {
				gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
				return
			}
			gctx.JSON(http.StatusBadRequest, errors.GenerateValidationErrorResponse(valerrs.Errors()))
			return
		}

		now := service.Clock().Now().UTC().Format(time.RFC3339)
		if upload.Timestamp == "" {
			upload.Timestamp = now
		}
		entry := entity.RelayEntry{GameUpload: upload, ServerTime: now}

		total, dberr := relayRepo.Append(gctx, logger, entry)
		if dberr != nil {
			// Storage failure is surfaced to the ingress caller, never fatal
			gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
			return
		}
		logger.WithCtx(gctx).Info().Msgf("Received %s upload for patient %s: score +%d, time +%ds",
			entity.ActivityLabel(upload.GameType), upload.PatientID, upload.ScoreIncrease, upload.TimeIncrease)

		service.Broadcast(gctx, entity.SSEData{
			Type:         entity.EventGameData,
			Data:         entry,
			TotalRecords: total,
		})

		gctx.JSON(http.StatusOK, gin.H{
			"success":            true,
			"message":            "Upload received",
			"connectedObservers": service.ClientCount(),
		})
	}
}

// getGameData returns the full current log, a snapshot for dashboards that
// missed the live stream on first load.
func getGameData(relayRepo Repository, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		entries, dberr := relayRepo.List(gctx, logger)
		if dberr != nil {
			gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
			return
		}
		gctx.JSON(http.StatusOK, gin.H{
			"success":      true,
			"data":         entries,
			"totalRecords": len(entries),
		})
	}
}

// clearGameData empties the log and notifies all observers, test/reset flows only.
func clearGameData(service Service, relayRepo Repository, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		if dberr := relayRepo.Clear(gctx, logger); dberr != nil {
			gctx.JSON(http.StatusInternalServerError, errors.InternalServerError(""))
			return
		}
		logger.WithCtx(gctx).Info().Msg("Relay log cleared")
		service.Broadcast(gctx, entity.SSEData{
			Type:    entity.EventDataCleared,
			Message: "Relay log cleared",
		})
		gctx.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Relay log cleared",
		})
	}
}

// stream opens the long-lived server-push connection for one observer.
// The observer gets an immediate acknowledgment, then only the live stream
// going forward, no backlog.
func stream(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		v, ok := gctx.Get("SSE")
		if !ok {
			gctx.Status(http.StatusInternalServerError)
			return
		}
		client, ok := v.(entity.SSEClient)
		if !ok {
			gctx.Status(http.StatusInternalServerError)
			return
		}

		gctx.SSEvent(entity.EventInit, entity.SSEData{
			Type:      entity.EventInit,
			Message:   "observer connected",
			Timestamp: service.Clock().Now().UTC().Format(time.RFC3339),
		})
		gctx.Writer.Flush()

		heartbeat := service.Clock().NewTicker(HeartbeatPeriod)
		defer heartbeat.Stop()

		gctx.Stream(func(w io.Writer) bool {
			select {
			// Send msg to the observer
			case msg, ok := <-client.Channel:
				if !ok {
					return false
				}
				gctx.SSEvent(msg.Type, msg)
				return true
			// Keep-alive so intermediaries don't time the stream out
			case <-heartbeat.Chan():
				gctx.SSEvent(entity.EventHeartbeat, entity.SSEData{
					Type:      entity.EventHeartbeat,
					Timestamp: service.Clock().Now().UTC().Format(time.RFC3339),
				})
				return true
			// Server shutdown
			case <-quit:
				return false
			// Observer exit
			case <-gctx.Request.Context().Done():
				return false
			}
		})
	}
}
