// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted access logs, error responses, panic
// recovery, metrics, CORS, security headers, and rate limiting.
//
// Every failure, whether returned by a handler, raised by middleware or
// recovered from a panic, is rendered by middleware.ErrorHandler. Nothing
// else in the chain writes an error body.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/auth"
	"github.com/tbourn/go-clinic-api/internal/config"
	"github.com/tbourn/go-clinic-api/internal/docs"
	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/http/handlers"
	"github.com/tbourn/go-clinic-api/internal/http/middleware"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/services"
	"github.com/tbourn/go-clinic-api/internal/translate"
)

const msgUnavailable = "Servicio no disponible"

// unconfiguredTokens rejects every token when no JWT secret is set, so
// protected routes fail with a 500 instead of accepting anything.
type unconfiguredTokens struct{}

func (unconfiguredTokens) Verify(string) (*auth.Claims, error) {
	return nil, apperr.Internal(auth.ErrMissingSecret)
}

// RegisterRoutes installs global middleware, fallbacks, operational endpoints
// and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: access log with redaction, after the response is final
//  4. Metrics
//  5. Gzip, wrapping everything that may write a body
//  6. ErrorHandler: the single place error bodies are written
//  7. Recovery: panics become errors for ErrorHandler
//  8. Body size limiter
//  9. Rate limiter (per user/IP)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, users *repo.FileStore, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		translate.RegisterJSONTagNames(v)
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access log with redaction
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		LogHeaders:  cfg.LogHeaders,
	}))

	// 4) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 5) Response compression (skips /metrics, which negotiates its own)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Error responses
	r.Use(middleware.ErrorHandler(middleware.ErrorOptions{
		Debug:      cfg.Debug,
		Translator: translate.Default(cfg.Debug),
	}))

	// 7) Panic recovery into the error pipeline
	r.Use(middleware.Recovery())

	// 8) Global body size limit
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	r.Use(limitBody(bodyLimit))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (allow all if none configured)
	corsHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"}
	corsExpose := []string{"X-Request-ID", "Content-Length", "ETag", "X-Total-Count", "Retry-After"}
	corsMethods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Set ACAO even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: "private, no-cache",
		EnablePolicy: true,
	}))

	// Fallbacks raise errors; ErrorHandler writes them.
	r.NoRoute(middleware.NotFoundRoute())
	r.NoMethod(middleware.MethodNotAllowed())

	// Liveness/readiness
	r.GET("/health", middleware.Handle(health(db)))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/file store
	var verifier middleware.TokenVerifier = unconfiguredTokens{}
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	if err != nil {
		log.Warn().Err(err).Msg("token issuance disabled; login and protected routes will fail")
	} else {
		verifier = tokens
	}

	userH := handlers.NewUserHandlers(services.NewUserService(db, repo.Gorm{}, tokens, cfg.Auth.BcryptCost))
	fileH := handlers.NewFileUserHandlers(services.NewFileUserService(users))
	clinicH := handlers.NewClinicHandlers(
		services.NewDoctorService(db, repo.Gorm{}),
		services.NewPatientService(db, repo.Gorm{}),
		services.NewAppointmentService(db, repo.Gorm{}),
	)

	id := middleware.ValidateUUIDParam("id")
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// JSON-file users
		u := api.Group("/users")
		u.GET("", middleware.Handle(fileH.List))
		u.GET("/:id", middleware.Handle(fileH.Get))
		u.POST("", middleware.Handle(fileH.Create))
		u.PUT("/:id", middleware.Handle(fileH.Replace))
		u.PATCH("/:id", middleware.Handle(fileH.Patch))
		u.DELETE("/:id", middleware.Handle(fileH.Delete))

		// Database users
		du := api.Group("/db-users")
		du.POST("/login", middleware.Handle(userH.Login))
		du.GET("", middleware.Authenticate(verifier), middleware.Handle(userH.List))
		du.GET("/:id", id, middleware.Handle(userH.Get))
		du.POST("", middleware.OptionalAuthenticate(verifier), middleware.Handle(userH.Create))
		du.PATCH("/:id", middleware.OptionalAuthenticate(verifier), id, middleware.Handle(userH.Update))
		du.PATCH("/:id/password", id, middleware.Handle(userH.ChangePassword))
		du.DELETE("/:id", middleware.Authenticate(verifier), middleware.RequireRole(domain.RoleAdmin), id, middleware.Handle(userH.Delete))

		// Doctors
		d := api.Group("/doctors")
		d.GET("", middleware.Handle(clinicH.ListDoctors))
		d.POST("", middleware.Handle(clinicH.CreateDoctor))
		d.GET("/search", middleware.Handle(clinicH.SearchDoctors))
		d.GET("/:id", id, middleware.Handle(clinicH.GetDoctor))
		d.PATCH("/:id", id, middleware.Handle(clinicH.UpdateDoctor))
		d.DELETE("/:id", id, middleware.Handle(clinicH.DeleteDoctor))

		// Patients
		p := api.Group("/patients")
		p.GET("", middleware.Handle(clinicH.ListPatients))
		p.POST("", middleware.Handle(clinicH.CreatePatient))
		p.GET("/search", middleware.Handle(clinicH.SearchPatients))
		p.GET("/:id", id, middleware.Handle(clinicH.GetPatient))
		p.PATCH("/:id", id, middleware.Handle(clinicH.UpdatePatient))
		p.DELETE("/:id", id, middleware.Handle(clinicH.DeletePatient))

		// Appointments
		a := api.Group("/appointments")
		a.GET("", middleware.Handle(clinicH.ListAppointments))
		a.POST("", middleware.Handle(clinicH.CreateAppointment))
		a.GET("/date", middleware.Handle(clinicH.AppointmentsByDate))
		a.GET("/patient/:patientId", middleware.ValidateUUIDParam("patientId"), middleware.Handle(clinicH.AppointmentsByPatient))
		a.GET("/doctor/:doctorId", middleware.ValidateUUIDParam("doctorId"), middleware.Handle(clinicH.AppointmentsByDoctor))
		a.GET("/:id", id, middleware.Handle(clinicH.GetAppointment))
		a.PATCH("/:id", id, middleware.Handle(clinicH.UpdateAppointment))
		a.PATCH("/:id/cancel", id, middleware.Handle(clinicH.CancelAppointment))
	}
}

// health reports "ok" when the database answers a ping within two seconds.
func health(db *gorm.DB) middleware.HandlerFunc {
	return func(c *gin.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return apperr.New(msgUnavailable, http.StatusServiceUnavailable).WithCause(err)
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			return apperr.New(msgUnavailable, http.StatusServiceUnavailable).WithCause(err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return nil
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
