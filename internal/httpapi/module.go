package httpapi

import (
	"net/http"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/health"
	"librix-licensing/pkg/middleware"
	"librix-licensing/services/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewAuthHandler,
		NewClientHandler,
		NewCorporationHandler,
		NewRouter,
	),
)

type RouterParams struct {
	fx.In
	Config      *config.Config
	Health      health.HealthService
	Auth        *AuthHandler
	Client      *ClientHandler
	Corporation *CorporationHandler
	Tokens      *token.Service
}

// NewRouter assembles the gin engine and the /v1.0 route table.
func NewRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.Error(),
	)

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1.0")
	v1.POST("/auth", p.Auth.Authenticate)

	session := v1.Group("", middleware.SessionAuth(p.Config))
	{
		session.GET("/client", p.Client.Status)
		session.POST("/client/demo", p.Client.GrantDemo)
		session.POST("/client/link", p.Client.Link)
		session.POST("/client/unlink", p.Client.Unlink)
		session.POST("/client/token", p.Client.IssueToken)

		session.GET("/corporation/:code", p.Corporation.Get)
		session.GET("/corporations", p.Corporation.List)
		session.POST("/corporation", p.Corporation.Create)
		session.PUT("/corporation", p.Corporation.UpdateSelf)
		session.PUT("/corporation/:code", p.Corporation.UpdateByCode)
	}

	clientToken := v1.Group("", middleware.ClientTokenAuth(p.Tokens.Validate))
	{
		clientToken.PUT("/client", p.Client.UpdateViaToken)
	}

	return r
}
