package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/birthday-campaign/internal/repository"
	"github.com/ErlanBelekov/birthday-campaign/internal/transport/http/handler"
	"github.com/ErlanBelekov/birthday-campaign/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, discountHandler *handler.DiscountHandler, userRepo repository.UserRepository, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(jwtKey)
	ensureUser := middleware.EnsureUser(userRepo, logger)

	// Protected discount routes
	discounts := r.Group("/discounts", authMW, ensureUser)
	discounts.POST("/redeem", discountHandler.Redeem)
	discounts.GET("/available", discountHandler.ListAvailable)

	return r
}
