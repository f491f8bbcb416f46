// Package server wires services, handlers and middleware into the HTTP API.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"beanmind/internal/config"
	_ "beanmind/internal/docs" // Import swagger docs
	"beanmind/internal/handlers"
	"beanmind/internal/ledger"
	"beanmind/internal/middleware"
	"beanmind/internal/services"
)

// Services holds every service the API and the scheduler depend on.
type Services struct {
	User      services.UserServicer
	Audit     services.AuditServicer
	Recurring services.RecurringServicer
	Budget    services.BudgetServicer
	Ledger    services.LedgerServicer
}

// NewServices builds the service graph on db. The journal is shared so rule
// executions and manual entries are ordered by the same write lock.
func NewServices(db *gorm.DB, cfg *config.Config) *Services {
	journal := ledger.NewJournal(db, ledger.NewFileMirror(cfg.LedgerFile))
	return &Services{
		User:  services.NewUserService(db),
		Audit: services.NewAuditService(db),
		Recurring: services.NewRecurringService(db, journal, services.RecurringOptions{
			ClaimTTL: cfg.PendingClaimTTL,
			Location: cfg.SchedulerLocation,
		}),
		Budget: services.NewBudgetService(db, journal),
		Ledger: services.NewLedgerService(journal),
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(svc *Services, cfg *config.Config) *gin.Engine {
	loc := cfg.SchedulerLocation

	authHandler := handlers.NewAuthHandler(svc.User, svc.Audit)
	ruleHandler := handlers.NewRecurringRuleHandler(svc.Recurring, svc.Audit, loc)
	budgetHandler := handlers.NewBudgetHandler(svc.Budget, svc.Audit, loc)
	ledgerHandler := handlers.NewLedgerHandler(svc.Ledger, svc.Audit)
	pipelineHandler := handlers.NewPipelineHandler(svc.Recurring, loc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	// Machine-to-machine routes
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(cfg.PipelineAPIKey))
	pipeline.POST("/recurring/run", pipelineHandler.RunRecurring)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	rules := protected.Group("/recurring-rules")
	rules.POST("", ruleHandler.CreateRule)
	rules.GET("", ruleHandler.GetRules)
	rules.GET("/:id", ruleHandler.GetRule)
	rules.PUT("/:id", ruleHandler.UpdateRule)
	rules.DELETE("/:id", ruleHandler.DeleteRule)
	rules.POST("/:id/execute", ruleHandler.ExecuteRule)
	rules.GET("/:id/executions", ruleHandler.GetExecutions)
	rules.GET("/:id/preview", ruleHandler.PreviewRule)

	budgets := protected.Group("/budgets")
	budgets.POST("", budgetHandler.CreateBudget)
	budgets.GET("", budgetHandler.GetBudgets)
	budgets.GET("/overview", budgetHandler.GetOverview)
	budgets.GET("/:id", budgetHandler.GetBudget)
	budgets.PUT("/:id", budgetHandler.UpdateBudget)
	budgets.DELETE("/:id", budgetHandler.DeleteBudget)
	budgets.GET("/:id/cycles", budgetHandler.GetBudgetCycles)
	budgets.GET("/:id/cycles/summary", budgetHandler.GetCycleSummary)
	budgets.GET("/:id/cycles/:number", budgetHandler.GetBudgetCycle)
	budgets.GET("/:id/progress", budgetHandler.GetBudgetProgress)

	ledgerRoutes := protected.Group("/ledger")
	ledgerRoutes.POST("/accounts", ledgerHandler.OpenAccount)
	ledgerRoutes.GET("/accounts", ledgerHandler.GetAccounts)
	ledgerRoutes.POST("/accounts/close", ledgerHandler.CloseAccount)
	ledgerRoutes.POST("/transactions", ledgerHandler.CreateTransaction)
	ledgerRoutes.GET("/postings", ledgerHandler.GetPostings)

	return router
}

// cors allows browser clients on any origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
