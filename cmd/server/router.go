// List of all REST API endpoints being used by CareCast can be found here.

package main

import (
	"CareCast/internal/relay"
	"CareCast/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

func Router(router *gin.Engine, relayService relay.Service, relayRepo relay.Repository, logger log.Logger) {
	// This is the route to default path
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "CareCast telemetry relay")
	})

	relay.APIHandlers(router, relayService, relayRepo, relay.SSEConnManagerMiddleware(relayService, logger), logger)
}
