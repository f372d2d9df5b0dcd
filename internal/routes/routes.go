package routes

import (
	"net/http"

	"github.com/soberly/recovery/internal/app"
	"github.com/soberly/recovery/internal/handler"
	"github.com/soberly/recovery/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, app.Cfg)
	account := handler.NewAccountHandler(app.UserService, app.SubscriptionService)
	checkIns := handler.NewCheckInHandler(app.CheckInService)
	progress := handler.NewProgressHandler(app.StreakService, app.MilestoneService)
	analytics := handler.NewAnalyticsHandler(app.AnalyticsService)
	coping := handler.NewCopingHandler(app.CopingService)
	billing := handler.NewBillingHandler(app.SubscriptionService, app.UserService, app.PaymentService)
	export := handler.NewExportHandler(app.ExportService)
	health := handler.NewHealthHandler(app.DB)

	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuth

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Health)

	// Auth - credential endpoints are rate limited per IP
	authLimiter := middleware.RateLimitAuth()
	mux.HandleFunc("POST /api/auth/register", authLimiter.HandlerFunc(auth.Register))
	mux.HandleFunc("POST /api/auth/login", authLimiter.HandlerFunc(auth.Login))
	mux.HandleFunc("POST /api/auth/refresh", auth.Refresh)
	mux.HandleFunc("GET /api/auth/google", authLimiter.HandlerFunc(auth.GoogleAuth))
	mux.HandleFunc("GET /api/auth/google/callback", authLimiter.HandlerFunc(auth.GoogleCallback))

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	mux.HandleFunc("POST /api/auth/logout", requireAuth(auth.Logout))

	// Account
	mux.HandleFunc("GET /api/me", requireAuth(account.Me))
	mux.HandleFunc("DELETE /api/me", requireAuth(account.DeleteAccount))

	// Check-ins
	mux.HandleFunc("POST /api/checkins", requireAuth(checkIns.Create))
	mux.HandleFunc("POST /api/checkins/backfill", requireAuth(checkIns.Backfill))
	mux.HandleFunc("GET /api/checkins", requireAuth(checkIns.List))

	// Streaks
	mux.HandleFunc("GET /api/streaks/checkin", requireAuth(progress.CheckInStreak))
	mux.HandleFunc("GET /api/streaks/relapse", requireAuth(progress.NonRelapseStreak))
	mux.HandleFunc("GET /api/streaks/summary", requireAuth(progress.StreakSummary))

	// Milestones
	mux.HandleFunc("GET /api/milestones/progress", requireAuth(progress.MilestoneProgress))
	mux.HandleFunc("GET /api/milestones/history", requireAuth(progress.MilestoneHistory))
	mux.HandleFunc("GET /api/milestones/stats", requireAuth(progress.MilestoneStats))
	mux.HandleFunc("POST /api/milestones/check", requireAuth(progress.CheckMilestones))

	// Analytics
	mux.HandleFunc("GET /api/analytics/overview", requireAuth(analytics.Overview))
	mux.HandleFunc("GET /api/analytics/time-series", requireAuth(analytics.TimeSeries))
	mux.HandleFunc("GET /api/analytics/trends", requireAuth(analytics.Trends))

	// Coping
	mux.HandleFunc("GET /api/coping/strategies", requireAuth(coping.Strategies))
	mux.HandleFunc("GET /api/coping/strategies/{id}", requireAuth(coping.Strategy))
	mux.HandleFunc("POST /api/coping/strategies", requireAuth(coping.CreateStrategy))
	mux.HandleFunc("POST /api/coping/usage", requireAuth(coping.LogUsage))
	mux.HandleFunc("GET /api/coping/usage", requireAuth(coping.Usages))
	mux.HandleFunc("GET /api/coping/usage/{id}", requireAuth(coping.Usage))
	mux.HandleFunc("PUT /api/coping/usage/{id}/complete", requireAuth(coping.CompleteUsage))
	mux.HandleFunc("DELETE /api/coping/usage/{id}", requireAuth(coping.DeleteUsage))

	// Billing
	mux.HandleFunc("GET /api/billing/subscription", requireAuth(billing.Subscription))
	mux.HandleFunc("POST /api/billing/checkout", requireAuth(billing.CreateCheckout))
	mux.HandleFunc("GET /api/billing/portal", requireAuth(billing.CustomerPortal))

	// Export
	mux.HandleFunc("POST /api/export", requireAuth(export.Create))
	mux.HandleFunc("GET /api/export", requireAuth(export.List))

	// ============================================================================
	// WEBHOOKS
	// ============================================================================

	// Payment provider webhook (works with both Polar and Stripe)
	mux.HandleFunc("POST /webhooks/payment", billing.Webhook)

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/", handler.NotFound)

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.RealIP,
		middleware.SecurityHeaders,
		middleware.RequestLogging,
		middleware.PerMinute(app.Cfg.RateLimitPerMinute).Middleware,
		middleware.Authenticate(app.AuthService),
	)
}
