package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/lesspay/internal/handlers"
	"github.com/example/lesspay/internal/middleware"
	"github.com/example/lesspay/internal/services"
	"github.com/example/lesspay/internal/utils"
)

// Dependencies are the long-lived services the HTTP layer calls into.
type Dependencies struct {
	DB            *gorm.DB
	Store         services.TransactionStore
	Links         handlers.LinkCreator
	Reconciler    *services.Reconciler
	Tokens        *utils.TokenIssuer
	BackOfficeKey string
	Log           *zap.Logger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.DB, deps.Tokens)
	profileHandler := handlers.NewProfileHandler(deps.DB, deps.Store)
	paymentHandler := handlers.NewPaymentHandler(deps.DB, deps.Links, deps.Reconciler, deps.Store)
	callbackHandler := handlers.NewCallbackHandler(deps.Reconciler, deps.Log)
	backOfficeHandler := handlers.NewBackOfficeHandler(deps.Store, deps.Reconciler, deps.Log)
	adminHandler := handlers.NewAdminHandler(deps.DB)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Gateway webhook
	app.Post("/payment-callback", callbackHandler.PaymentCallback)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Back office
	backOffice := api.Group("/backoffice", middleware.BackOfficeAuth(deps.BackOfficeKey))
	backOffice.Get("/transactions", backOfficeHandler.ListTransactions)
	backOffice.Put("/transactions/:id/transfer-status", backOfficeHandler.UpdateTransferStatus)
	backOffice.Post("/sweep", backOfficeHandler.RunSweep)
	backOffice.Get("/stats", adminHandler.DashboardStats)
	backOffice.Get("/users", adminHandler.ListAllUsers)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(deps.Tokens))

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Put("/profile/password", profileHandler.ChangePassword)
	protected.Put("/profile/bank", profileHandler.UpdateBankDetails)
	protected.Get("/profile/transactions", profileHandler.ListTransactions)

	protected.Post("/payments/links", paymentHandler.CreateLink)
	protected.Get("/payments/:id/status", paymentHandler.GetStatus)
	protected.Get("/payments/:id", paymentHandler.GetTransaction)
}
