package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/excel-console/api/controllers"
	"github.com/moyoez/excel-console/api/middlewares"
	"github.com/moyoez/excel-console/api/notifyhub"
	"github.com/moyoez/excel-console/console"
	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// Server is the local HTTP surface of one console.
type Server struct {
	port    int
	console *console.Console
	hub     *notifyhub.Hub

	consoleCtrl *controllers.ConsoleController
	historyCtrl *controllers.HistoryController
	qrFallback  string

	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

// Backend is the backend client as seen by the routes.
type Backend interface {
	controllers.BackendStatus
	controllers.RemoteFiles
}

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Console      *console.Console
	History      controllers.LogHistory
	Backend      Backend
	UploadFolder string
	ProbeICMP    bool
}

func NewServer(port int, deps Deps) *Server {
	return &Server{
		port:        port,
		console:     deps.Console,
		hub:         notifyhub.New(),
		consoleCtrl: controllers.NewConsoleController(deps.Console, deps.Backend, deps.UploadFolder),
		historyCtrl: controllers.NewHistoryController(deps.History, deps.Backend, deps.ProbeICMP),
		qrFallback:  deps.Backend.BaseURL(),
	}
}

func stateEvent(v console.View) *types.ConsoleEvent {
	return &types.ConsoleEvent{Type: types.ConsoleEventState, Data: v.Snapshot()}
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middlewares.AllowAllCORS())

	v1 := engine.Group("/api/console/v1", middlewares.OnlyAllowLocal)
	{
		v1.GET("/state", s.consoleCtrl.HandleState)
		v1.POST("/select", s.consoleCtrl.HandleSelect)
		v1.POST("/preview", s.consoleCtrl.HandlePreview)
		v1.POST("/commit", s.consoleCtrl.HandleCommit)
		v1.POST("/acknowledge", s.consoleCtrl.HandleAcknowledge)
		v1.POST("/reset", s.consoleCtrl.HandleReset)
		v1.POST("/validate", s.consoleCtrl.HandleValidate)
		v1.GET("/sheets", s.consoleCtrl.HandleSheets)
		v1.GET("/template", s.consoleCtrl.HandleTemplate)

		v1.GET("/logs", s.historyCtrl.HandleLogs)
		v1.GET("/logs/:id", s.historyCtrl.HandleLog)
		v1.GET("/stats", s.historyCtrl.HandleStats)
		v1.GET("/health", s.historyCtrl.HandleHealth)

		v1.GET("/qr", controllers.QRCode(s.qrFallback))
		v1.GET("/notify-ws", notifyhub.HandleNotifyWS(s.hub, func() *types.ConsoleEvent {
			return stateEvent(s.console.View())
		}))
	}
	return engine
}

// relay pushes every console snapshot to the notify hub until the console closes.
func (s *Server) relay() {
	updates, cancel := s.console.Subscribe()
	defer cancel()
	for v := range updates {
		s.hub.Broadcast(stateEvent(v))
	}
}

// Handler builds the routes without listening; used by tests.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

// Start serves the console API on localhost until Shutdown.
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: handler,
	}
	srv := s.server
	s.mu.Unlock()

	go s.relay()

	tool.DefaultLogger.Infof("Starting console API on http://%s/api/console/v1", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
