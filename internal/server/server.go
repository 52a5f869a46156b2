package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/propertystore"
)

// Server is the HTTP surface over the actor tree: a thin echo.Handler that
// turns requests into actor messages (commands to the Control Engine,
// health checks against the Master of Puppets) or direct, lock-protected
// reads of the Property Store. Grounded on the teacher's Server/
// NewServer, generalised from its single healthcheck route to the
// status/command/event surface spec.md §6 describes.
type Server struct {
	port    uint
	httpLog bool

	rootContext   *actor.RootContext
	masterActor   *actor.PID
	controlEngine *actor.PID
	props         *propertystore.Store
	cfg           config.Config
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, controlEngine *actor.PID, props *propertystore.Store) *http.Server {
	s := &Server{
		port:          cfg.Port,
		httpLog:       cfg.HttpLog,
		rootContext:   rootContext,
		masterActor:   masterActor,
		controlEngine: controlEngine,
		props:         props,
		cfg:           cfg,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // /api/events streams indefinitely
	}
}
