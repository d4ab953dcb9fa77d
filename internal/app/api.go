// Package app wires the HTTP API: team, task, chat and profile endpoints
// over the document store, with live task and chat updates exposed as SSE
// streams backed by store subscriptions.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	auth "github.com/RonPlusSign/workstream/internal/authmw"
	"github.com/RonPlusSign/workstream/internal/chat"
	"github.com/RonPlusSign/workstream/internal/store"
	"github.com/RonPlusSign/workstream/internal/teams"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server owns the application state: configuration, store client and the
// domain services. Constructed once at startup and torn down on shutdown;
// nothing lives in package-level mutable state.
type Server struct {
	config Config
	engine *gin.Engine
	store  store.Client

	teams *teams.Service
	chat  *chat.Service

	// identity is nil when no provider client secret is configured; the
	// register/login endpoints are then not mounted and tokens are only
	// validated, never issued here.
	identity *auth.Service
}

func newServer(cfg Config, st store.Client, authn gin.HandlerFunc, identity *auth.Service) *Server {
	s := &Server{
		config:   cfg,
		store:    st,
		teams:    teams.NewService(st),
		chat:     chat.NewService(st),
		identity: identity,
	}

	setGinMode(cfg.ApiGinMode)
	s.engine = gin.Default()
	s.setCors()
	s.setRoutes(authn)

	return s
}

func (s *Server) setCors() {
	corsconfig := cors.DefaultConfig()
	corsconfig.AllowOrigins = s.config.AllowedOrigins
	corsconfig.AllowMethods = s.config.AllowedMethods
	corsconfig.AllowHeaders = s.config.AllowedHeaders
	s.engine.Use(cors.New(corsconfig))
}

func mustInitKcAuth(cfg Config) *auth.KeycloakAuth {
	jwksURL := fmt.Sprintf("http://%s/realms/%s/protocol/openid-connect/certs", cfg.AuthAddress, cfg.Realm)

	a, err := auth.NewKeycloakAuth(jwksURL, cfg.Issuer, cfg.Audience, cfg.ClientID)
	if err != nil {
		panic(err)
	}
	return a
}

func (s *Server) setRoutes(authn gin.HandlerFunc) {
	root := s.engine.Group("/")
	{
		root.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "alive"})
		})
	}

	if s.identity != nil {
		root.POST("/register", s.handleRegister)
		root.POST("/login", s.handleLogin)
	}

	authed := root.Group("/auth")
	authed.Use(authn)
	{
		authed.GET("/me", s.handleMe)
		authed.PUT("/me", s.handleUpdateProfile)
		authed.GET("/statuses", s.handleSuggestedStatuses)

		// invite preview and join stay open to non-members, everything else
		// under a :teamid is member-guarded, destructive team settings are
		// admin-guarded
		member := s.teamGuard(false)
		admin := s.teamGuard(true)

		authed.GET("/my-teams", s.handleMyTeams)
		authed.POST("/teams", s.handleTeamCreate)
		authed.GET("/teams/:teamid", member, s.handleTeamGet)
		authed.POST("/teams/join", s.handleTeamJoin)
		authed.GET("/invites/:teamid", s.handleInvitePreview)
		authed.DELETE("/teams/:teamid/members/:email", member, s.handleMemberRemove)
		authed.PUT("/teams/:teamid/admin", admin, s.handleSetAdmin)
		authed.POST("/teams/:teamid/sections", member, s.handleSectionAdd)
		authed.DELETE("/teams/:teamid/sections/:name", admin, s.handleSectionRemove)

		authed.GET("/my-tasks", s.handleMyTasks)
		authed.GET("/teams/:teamid/tasks", member, s.handleListTeamTasks)
		authed.GET("/teams/:teamid/tasks/stream", member, s.handleStreamTeamTasks)
		authed.POST("/teams/:teamid/tasks", member, s.handleTaskCreate)
		authed.PUT("/tasks/:taskid", s.handleTaskUpdate)
		authed.DELETE("/tasks/:taskid", s.handleTaskDelete)
		authed.POST("/tasks/:taskid/complete", s.handleTaskComplete)
		authed.POST("/tasks/:taskid/assign", s.handleTaskAssign)
		authed.POST("/tasks/:taskid/comments", s.handleCommentCreate)
		authed.DELETE("/tasks/:taskid/comments/:commentid", s.handleCommentDelete)

		authed.GET("/teams/:teamid/chat/group", member, s.handleGroupMessages)
		authed.POST("/teams/:teamid/chat/group", member, s.handleGroupSend)
		authed.GET("/teams/:teamid/chat/group/stream", member, s.handleGroupStream)
		authed.PUT("/teams/:teamid/chat/group/messages/:msgid", member, s.handleGroupMessageEdit)
		authed.DELETE("/teams/:teamid/chat/group/messages/:msgid", member, s.handleGroupMessageDelete)

		authed.GET("/teams/:teamid/chat/with/:partner", member, s.handleDirectMessages)
		authed.POST("/teams/:teamid/chat/with/:partner", member, s.handleDirectSend)
		authed.GET("/teams/:teamid/chat/with/:partner/stream", member, s.handleDirectStream)
		authed.PUT("/teams/:teamid/chat/with/:partner/messages/:msgid", member, s.handleDirectMessageEdit)
		authed.DELETE("/teams/:teamid/chat/with/:partner/messages/:msgid", member, s.handleDirectMessageDelete)
	}
}

// InitAndServe loads the configuration, connects the store and the identity
// provider and serves until interrupted.
func InitAndServe(confPath string) {
	config := loadConfig(confPath)

	pg, err := store.NewPostgres(context.Background(), config.dbConnString())
	if err != nil {
		log.Fatalf("failed to initialize the document store: %v", err)
	}

	var (
		identity *auth.Service
		authn    gin.HandlerFunc
	)
	if config.ClientSecret != "" {
		identity, err = auth.NewService(
			config.AuthAddress, config.Realm, config.ClientID,
			config.Issuer, config.Audience, config.ClientSecret,
		)
		if err != nil {
			log.Fatalf("failed to initialize the identity provider client: %v", err)
		}
		authn = identity.KCAuth.RequireRoles()
	} else {
		log.Printf("no identity client secret configured, register/login endpoints disabled")
		authn = mustInitKcAuth(config).RequireRoles()
	}

	s := newServer(config, pg, authn, identity)

	// serve http
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              config.listenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: time.Second * 5,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()

	stop()
	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// in-flight requests have drained, now close subscriptions and db conn
	pg.Close()

	log.Println("Server exiting")
}

func setGinMode(mode string) {
	switch strings.ToLower(mode) {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "envgin":
		gin.SetMode(gin.EnvGinMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
}
