// The main file of CareCast.

package main

import (
	"CareCast/internal/config"
	"CareCast/internal/relay"
	"CareCast/pkg/cleanup"
	"CareCast/pkg/db"
	"CareCast/pkg/log"
	"CareCast/pkg/logger"
	"CareCast/pkg/middlewares"
	"CareCast/pkg/validations"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

var (
	// Indicates the current version of CareCast.
	Version = "1.0.0"
	// Address and Port to be used by gin.
	srvaddr, srvport string
)

func init() {
	if len(os.Getenv("ENV")) == 0 {
		// Fall back to the development env file
		config.LoadDevConfig()
	}
	logger.Setup(os.Getenv("ENV"))

	logger.Logger.Info().Msg(fmt.Sprintf("Welcome to CareCast: v%s", Version))
	logger.Logger.Info().Msg(fmt.Sprintf("CareCast Environment: %s", os.Getenv("ENV")))

	// Fetching addr and port depending upon env flag.
	srvaddr, srvport = os.Getenv("SRV_ADDR"), os.Getenv("SRV_PORT")
	// This is the preferred mode used by gin server in DEV environment.
	if os.Getenv("ENV") == "DEV" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func main() {
	ctx := context.Background()
	applog := log.New(Version)

	// Registering custom validations used on upload payloads.
	validations.RegisterCustomValidations(ctx, applog)

	// Relay log: redis-backed when a redis-server is configured so the log
	// survives relay restarts, in-memory ring otherwise.
	var dbConn *db.RedisDB
	var relayRepo relay.Repository
	if len(os.Getenv("REDIS_ADDR")) != 0 {
		dbConn = db.NewDbConnection(ctx, applog)
		if dberr := dbConn.CheckDbConnection(ctx, applog); dberr != nil {
			applog.Fatal().Err(dberr).Msg("Redis client couldn't PING the redis-server.")
		}
		relayRepo = relay.NewRedisRepository(dbConn)
	} else {
		applog.Info().Msg("No REDIS_ADDR configured, relay log is in-memory only.")
		relayRepo = relay.NewMemoryRepository(relay.LogCapacity)
	}

	// The broker fanning ingress uploads out to connected observers.
	relayService := relay.NewService(clockwork.NewRealClock(), applog)
	go relayService.Listen(ctx)

	// Initializing the gin server.
	server := gin.New()

	// Forcing gin to use custom Logger instead of the default one.
	server.Use(logger.LoggerGinExtension(&logger.Logger))
	server.Use(gin.Recovery())
	// Game tabs and dashboards connect from any same-network origin.
	server.Use(middlewares.CORSMiddleware("*"))
	server.Use(middlewares.CorrelationMiddleware(applog))

	// Running Router() which routes all of the REST API groups and paths.
	Router(server, relayService, relayRepo, applog)

	// Running the server with defined addr and port.
	srv := &http.Server{
		Addr:    srvaddr + ":" + srvport,
		Handler: server,
	}

	// ListenAndServe is a blocking operation, putting it a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err)
		}
	}()

	// Graceful shutdown of CareCast relay triggered due to system interruptions.
	operations := map[string]cleanup.Operation{
		"Relay-broker": relay.Cleanup,
		"Gin": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	}
	if dbConn != nil {
		operations["Redis-server"] = dbConn.CloseDbConnection
	}
	wait := cleanup.GracefulShutdown(context.Background(), 5*time.Second, operations)
	<-wait
}
