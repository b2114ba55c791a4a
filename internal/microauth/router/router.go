// Package router wires the HTTP API onto a gin engine.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/microauth/handler"
	"github.com/tinyauth/microauth/internal/microauth/store"
)

// Services bundles everything the routes need.
type Services struct {
	Store    store.Factory
	Client   biz.Client
	Resolver *biz.Resolver
	Tokens   *biz.TokenService
	Signing  *biz.SigningService
	Audit    *audit.Emitter
}

// Register registers all routes under /api/v1.
func Register(engine *gin.Engine, svc *Services) {
	authorizeHandler := handler.NewAuthorizeHandler(svc.Client, svc.Tokens, svc.Audit)
	signingHandler := handler.NewSigningHandler(svc.Signing, svc.Resolver, svc.Audit)
	userHandler := handler.NewUserHandler(svc.Store, svc.Client, svc.Audit)
	groupHandler := handler.NewGroupHandler(svc.Store, svc.Client, svc.Audit)
	policyHandler := handler.NewPolicyHandler(svc.Store, svc.Client, svc.Audit)

	v1 := engine.Group("/api/v1")
	{
		// Authorization
		v1.POST("/authorize", authorizeHandler.Authorize)
		v1.POST("/authorize-login", authorizeHandler.AuthorizeLogin)

		services := v1.Group("/services/:service")
		{
			services.POST("/authorize-by-token", authorizeHandler.AuthorizeByToken)
			services.POST("/get-token-for-login", authorizeHandler.GetTokenForLogin)
		}

		// Signing keys and service-side policy lookup
		regions := v1.Group("/regions/:region/services/:service")
		{
			regions.GET("/user-signing-tokens/:username/:protocol/:date", signingHandler.UserSigningKey)
			regions.GET("/access-key-signing-tokens/:access_key_id/:protocol/:date", signingHandler.AccessKeySigningKey)
			regions.GET("/user-policies/:username", signingHandler.UserPolicies)
		}

		// User management
		users := v1.Group("/users")
		{
			users.POST("", userHandler.Create)
			users.GET("", userHandler.List)
			users.GET("/:username", userHandler.Get)
			users.PUT("/:username", userHandler.Update)
			users.DELETE("/:username", userHandler.Delete)

			users.POST("/:username/keys", userHandler.CreateAccessKey)
			users.GET("/:username/keys", userHandler.ListAccessKeys)
			users.DELETE("/:username/keys/:access_key_id", userHandler.DeleteAccessKey)

			users.PUT("/:username/policies/:policy", policyHandler.SetUserPolicy)
			users.GET("/:username/policies/:policy", policyHandler.GetUserPolicy)
			users.DELETE("/:username/policies/:policy", policyHandler.DeleteUserPolicy)
		}

		// Group management
		groups := v1.Group("/groups")
		{
			groups.POST("", groupHandler.Create)
			groups.GET("", groupHandler.List)
			groups.GET("/:name", groupHandler.Get)
			groups.DELETE("/:name", groupHandler.Delete)

			groups.PUT("/:name/members/:username", groupHandler.AddMember)
			groups.DELETE("/:name/members/:username", groupHandler.RemoveMember)

			groups.PUT("/:name/policies/:policy", policyHandler.SetGroupPolicy)
			groups.GET("/:name/policies/:policy", policyHandler.GetGroupPolicy)
			groups.DELETE("/:name/policies/:policy", policyHandler.DeleteGroupPolicy)
		}
	}
}
