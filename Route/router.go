package Route

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	audioRoute "github.com/abdul977/whimsical-idea-keeper/Route/Audio"
	authRoute "github.com/abdul977/whimsical-idea-keeper/Route/Auth"
	collaboratorRoute "github.com/abdul977/whimsical-idea-keeper/Route/Collaborator"
	"github.com/abdul977/whimsical-idea-keeper/Route/Common"
	noteRoute "github.com/abdul977/whimsical-idea-keeper/Route/Note"
	presenceRoute "github.com/abdul977/whimsical-idea-keeper/Route/Presence"
	"github.com/abdul977/whimsical-idea-keeper/service/Audio"
	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
	"github.com/abdul977/whimsical-idea-keeper/service/Collaborator"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
	"github.com/abdul977/whimsical-idea-keeper/service/Presence"
	"github.com/abdul977/whimsical-idea-keeper/service/Reasoning"
)

// Deps 路由需要的全部服务，由 main 组装
type Deps struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	SecureCookie   bool

	Users         Auth.UserService
	Sessions      *Auth.SessionService
	Notes         Note.NoteService
	Collaborators Collaborator.CollaboratorService
	Processor     Reasoning.Processor
	Storage       *Audio.Storage
	Recorders     *Audio.RecorderRegistry
	Transcriber   *Audio.Transcriber
	Hub           *Presence.Hub
}

func SetupRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), Common.RequestID(), Common.Logger(logger))

	// 配置CORS
	corsConfig := cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", Common.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", Common.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(deps.AllowedOrigins) == 0 {
		// 未配置时拒绝所有跨域请求
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := authRoute.NewHandler(deps.Users, deps.Sessions, logger, deps.SecureCookie)
	noteHandler := noteRoute.NewHandler(deps.Notes, deps.Processor, logger)
	audioHandler := audioRoute.NewHandler(deps.Storage, deps.Recorders, deps.Transcriber, deps.Processor, logger)
	collaboratorHandler := collaboratorRoute.NewHandler(deps.Collaborators)
	presenceHandler := presenceRoute.NewHandler(deps.Hub, deps.Notes, deps.Collaborators, deps.AllowedOrigins, logger)

	audioHandler.RegisterMediaRoutes(r)

	api := r.Group("/api")

	// 公开路由
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)
	api.POST("/logout", authHandler.Logout)
	noteHandler.RegisterPublicRoutes(api)

	// 需要认证的路由
	auth := api.Group("")
	auth.Use(authRoute.AuthMiddleware(deps.Sessions))
	auth.GET("/me", authHandler.Me)
	noteHandler.RegisterRoutes(auth)
	collaboratorHandler.RegisterRoutes(auth)
	audioHandler.RegisterRoutes(auth)
	presenceHandler.RegisterRoutes(auth)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
