// Server Side Events (SSE) middleware used to populate request context with the observer's channel.

package relay

import (
	"CareCast/internal/entity"
	"CareCast/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
)

// SSEConnManagerMiddleware registers an observer connection with the broker
// for the lifetime of the request and deregisters it on disconnect.
func SSEConnManagerMiddleware(service Service, logger log.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		// Initialize observer; the relay is unauthenticated so the identity
		// is a generated connection id, not a user
		client := &entity.SSEClient{
			ID:      xid.New().String(),
			Channel: make(chan entity.SSEData, clientBuffer),
		}

		// Send new connection to the broker to store
		service.GetOrSetEvent(gctx).NewClients <- *client

		defer func() {
			// Send closed connection to the broker; it tolerates observers
			// the broadcast loop already dropped
			logger.WithCtx(gctx).Info().Msgf("Closing observer stream : %s", client.ID)
			service.GetOrSetEvent(gctx).ClosedClients <- *client
		}()

		gctx.Set("SSE", *client)
		gctx.Next()
	}
}
