// Package router wires the public HTTP surface onto a gin.Engine, grounded
// on the teacher's server.Use/group composition in main.go (spec §4.8,
// §6 Public HTTP surface).
package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaygate/relaygate/common/graceful"
	"github.com/relaygate/relaygate/controller"
	"github.com/relaygate/relaygate/middleware"
)

// SetRouter registers every route from spec §6's endpoint table.
func SetRouter(server *gin.Engine, app *controller.AppContext) {
	server.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
	}))
	server.Use(graceful.GinRequestTracker())
	server.Use(middleware.Metrics())

	server.GET("/health", app.Health)
	server.GET("/metrics", middleware.AdminAuth(), gin.WrapH(promhttp.Handler()))
	server.POST("/api/gemini/oauth-callback", app.OAuthCallback)

	chat := server.Group("/", middleware.ClientAuth())
	{
		chat.POST("/v1/messages", app.Messages)
		chat.POST("/v1/gemini/messages", app.GeminiMessages)
		chat.POST("/v1/chat/completions", app.ChatCompletions)
		chat.GET("/v1/models", app.Models)
	}

	accounts := server.Group("/v2/accounts", middleware.AdminAuth())
	{
		accounts.GET("", app.ListAccounts)
		accounts.POST("", app.CreateAccount)
		accounts.GET("/:id", app.GetAccount)
		accounts.PATCH("/:id", app.PatchAccount)
		accounts.DELETE("/:id", app.DeleteAccount)
		accounts.POST("/:id/refresh", app.RefreshAccount)
		accounts.GET("/:id/quota", app.AccountQuota)
	}
}
