package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ocrs/registration-api/api/swagger"
	"github.com/ocrs/registration-api/internal/handler"
	"github.com/ocrs/registration-api/internal/middleware"
	"github.com/ocrs/registration-api/internal/models"
	"github.com/ocrs/registration-api/internal/repository"
	"github.com/ocrs/registration-api/internal/service"
	"github.com/ocrs/registration-api/pkg/cache"
	"github.com/ocrs/registration-api/pkg/config"
	"github.com/ocrs/registration-api/pkg/database"
	"github.com/ocrs/registration-api/pkg/jobs"
	"github.com/ocrs/registration-api/pkg/logger"
	corsmiddleware "github.com/ocrs/registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ocrs/registration-api/pkg/middleware/requestid"
)

// @title Course Registration API
// @version 1.0.0
// @description Online course registration backend: catalog, enrollment engine and waitlists
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	termRepo := repository.NewTermRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, studentRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "registration-api",
	})

	catalogSvc := service.NewCatalogService(courseRepo, departmentRepo, termRepo, sectionRepo, cacheSvc, logr)
	eligibilitySvc := service.NewEligibilityService(courseRepo, enrollmentRepo, cfg.Registration.CreditCeiling, logr)
	studentSvc := service.NewStudentService(studentRepo, enrollmentRepo, logr)

	enrollmentSvc := service.NewEnrollmentService(
		enrollmentRepo,
		waitlistRepo,
		sectionRepo,
		courseRepo,
		eligibilitySvc,
		cacheRepo,
		metricsSvc,
		service.EnrollmentConfig{
			ReserveAttempts: cfg.Registration.ReserveAttempts,
			WaitlistEnabled: cfg.Registration.WaitlistEnabled,
		},
		nil,
		logr,
	)
	enrollmentSvc.StartPromotionWorkers(ctx, jobs.QueueConfig{
		Workers:    cfg.Registration.PromotionWorkers,
		BufferSize: cfg.Registration.PromotionQueueSize,
		MaxRetries: cfg.Registration.PromotionRetries,
		Logger:     logr,
	})
	defer enrollmentSvc.StopPromotionWorkers()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	catalog := api.Group("")
	{
		catalog.GET("/courses", catalogHandler.ListCourses)
		catalog.GET("/courses/:id", catalogHandler.GetCourse)
		catalog.GET("/courses/:id/prerequisites", catalogHandler.ListPrerequisites)
		catalog.GET("/courses/:id/sections", catalogHandler.ListSections)
		catalog.GET("/sections/:id", catalogHandler.GetSection)
		catalog.GET("/departments", catalogHandler.ListDepartments)
		catalog.GET("/terms", catalogHandler.ListTerms)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty, models.RoleStudent))
	{
		enrollments.POST("", enrollmentHandler.Enroll)
		enrollments.GET("", enrollmentHandler.List)
		enrollments.DELETE("/sections/:sectionId", enrollmentHandler.Drop)
		enrollments.GET("/sections/:sectionId/waitlist-position", enrollmentHandler.WaitlistPosition)
		enrollments.DELETE("/sections/:sectionId/waitlist", enrollmentHandler.CancelWaitlist)
	}

	api.GET("/waitlists", middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty, models.RoleStudent), enrollmentHandler.Waitlists)

	students := api.Group("/students/:studentId", middleware.JWT(authSvc),
		middleware.RBAC(string(models.RoleAdmin), string(models.RoleFaculty), "SELF"))
	{
		students.GET("", studentHandler.Get)
		students.GET("/enrollments", enrollmentHandler.ListForStudent)
		students.GET("/waitlists", enrollmentHandler.WaitlistsForStudent)
		students.GET("/schedule", studentHandler.Schedule)
		students.GET("/schedule/export", studentHandler.ExportSchedule)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
