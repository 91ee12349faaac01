package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-admin-api/api/swagger"
	"github.com/noah-isme/course-admin-api/internal/handler"
	"github.com/noah-isme/course-admin-api/internal/middleware"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/internal/service"
	"github.com/noah-isme/course-admin-api/pkg/cache"
	"github.com/noah-isme/course-admin-api/pkg/config"
	"github.com/noah-isme/course-admin-api/pkg/database"
	"github.com/noah-isme/course-admin-api/pkg/jobs"
	"github.com/noah-isme/course-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-admin-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-admin-api/pkg/storage"
)

// @title Course Admin API
// @version 1.0.0
// @description Course catalogue administration
// @BasePath /api/v1
// @schemes http

const shutdownTimeout = 15 * time.Second

type courseStore interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Count(ctx context.Context) (int, error)
}

type teacherStore interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Upsert(ctx context.Context, teacher *models.Teacher) error
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type stores struct {
	courses  courseStore
	teachers teacherStore
	exports  exportJobStore
	db       *sqlx.DB
}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed, err := repository.LoadSeedFile(cfg.Courses.SeedFile)
	if err != nil {
		logr.Fatal("failed to load seed data", zap.Error(err))
	}
	if err := service.PrepareSeed(seed, nil); err != nil {
		logr.Fatal("invalid seed data", zap.String("file", cfg.Courses.SeedFile), zap.Error(err))
	}

	st, err := openStores(ctx, cfg, seed, logr)
	if err != nil {
		logr.Fatal("failed to open course store", zap.String("store", cfg.Courses.Store), zap.Error(err))
	}
	readiness := map[string]handler.ReadinessCheck{}
	if st.db != nil {
		defer st.db.Close() //nolint:errcheck
		readiness["postgres"] = st.db.PingContext
	}

	metricsSvc := service.NewMetricsService()
	feed := service.NewNotificationFeed(cfg.Notifications.FeedSize, nil)
	notifier := service.MultiNotifier{service.NewLogNotifier(logr), feed}
	access := service.DefaultRolePermissions()
	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.Expiration,
	})

	var statsCache *service.StatsCache
	if cfg.Stats.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("stats cache disabled", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			snapshots := repository.NewStatsCacheRepository(client, logr)
			statsCache = service.NewStatsCache(snapshots, metricsSvc, cfg.Stats.CacheTTL, logr)
			readiness["redis"] = snapshots.Ping
		}
	}

	courseOpts := []service.CourseServiceOption{
		service.WithCourseNotifier(notifier),
		service.WithCourseMetrics(metricsSvc),
	}
	if cfg.Courses.SimulatedLatency > 0 {
		courseOpts = append(courseOpts, service.WithCourseLatency(service.FixedLatency(cfg.Courses.SimulatedLatency)))
	}
	courseSvc := service.NewCourseService(st.courses, st.teachers, nil, logr, courseOpts...)
	if n, err := st.courses.Count(ctx); err == nil {
		metricsSvc.SetCourseCount(n)
	}
	statsSvc := service.NewCourseStatsService(courseSvc, statsCache, logr)
	teacherSvc := service.NewTeacherService(st.teachers, logr)

	courseHandler := handler.NewCourseHandler(courseSvc, statsSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	notificationHandler := handler.NewNotificationHandler(feed)
	authHandler := handler.NewAuthHandler(access)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness)

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		exportSvc, queue, err := startExports(ctx, cfg, st.exports, courseSvc, notifier, metricsSvc, access, logr)
		if err != nil {
			logr.Fatal("failed to start exports", zap.Error(err))
		}
		defer queue.Stop()
		exportHandler = handler.NewExportHandler(exportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Summary)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if exportHandler != nil {
		// The signed token is the credential here.
		api.GET("/exports/download/:token", exportHandler.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))
	secured.GET("/auth/me", authHandler.Me)

	view := secured.Group("")
	view.Use(middleware.RequirePermission(access, notifier, models.PermissionViewCourses))
	view.GET("/courses", courseHandler.List)
	view.GET("/courses/stats", courseHandler.Stats)
	view.GET("/courses/:id", courseHandler.Get)
	view.POST("/courses/validate", courseHandler.Validate)
	view.GET("/teachers", teacherHandler.List)
	view.GET("/teachers/:id", teacherHandler.Get)
	view.GET("/notifications", notificationHandler.List)
	if exportHandler != nil {
		view.POST("/courses/exports", exportHandler.Request)
		view.GET("/courses/exports/:id", exportHandler.Status)
	}

	edit := secured.Group("")
	edit.Use(middleware.RequirePermission(access, notifier, models.PermissionEditCourses))
	edit.POST("/courses", courseHandler.Create)
	edit.PUT("/courses/:id", courseHandler.Update)
	edit.DELETE("/courses/:id", courseHandler.Deactivate)
	edit.PATCH("/courses/:id/restore", courseHandler.Restore)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Courses.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logr.Sugar().Errorw("server failed", "error", err)
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
	logr.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config, seed *repository.SeedData, logr *zap.Logger) (*stores, error) {
	if cfg.Courses.Store != config.StorePostgres {
		logr.Info("using in-memory course store",
			zap.Int("teachers", len(seed.Teachers)), zap.Int("courses", len(seed.Courses)))
		return &stores{
			courses:  repository.NewCourseMemoryRepository(seed.Courses),
			teachers: repository.NewTeacherMemoryRepository(seed.Teachers),
			exports:  repository.NewExportJobMemoryRepository(),
		}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := &stores{
		courses:  repository.NewCourseRepository(db),
		teachers: repository.NewTeacherRepository(db),
		exports:  repository.NewExportJobRepository(db),
		db:       db,
	}
	if err := seedPostgres(ctx, st, seed, logr); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// seedPostgres upserts the seed teachers and loads the seed courses into an empty table.
func seedPostgres(ctx context.Context, st *stores, seed *repository.SeedData, logr *zap.Logger) error {
	for i := range seed.Teachers {
		if err := st.teachers.Upsert(ctx, &seed.Teachers[i]); err != nil {
			return fmt.Errorf("seed teacher %s: %w", seed.Teachers[i].ID, err)
		}
	}
	existing, err := st.courses.Count(ctx)
	if err != nil {
		return err
	}
	if existing > 0 || len(seed.Courses) == 0 {
		return nil
	}
	for i := range seed.Courses {
		if err := st.courses.Create(ctx, &seed.Courses[i]); err != nil {
			return fmt.Errorf("seed course %q: %w", seed.Courses[i].Name, err)
		}
	}
	logr.Info("seeded course store", zap.Int("teachers", len(seed.Teachers)), zap.Int("courses", len(seed.Courses)))
	return nil
}

func startExports(
	ctx context.Context,
	cfg *config.Config,
	store exportJobStore,
	courses *service.CourseService,
	notifier service.NotificationSink,
	metricsSvc *service.MetricsService,
	access service.PermissionChecker,
	logr *zap.Logger,
) (*service.CourseExportService, *jobs.Queue[string], error) {
	files, err := storage.NewFileStore(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(courses, files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr)

	worker := service.NewExportWorker(store, exporter, notifier, metricsSvc, logr)
	queue := jobs.New[string](worker.Handle, worker.GiveUp, jobs.Config{
		Name:       "course-exports",
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)

	exportSvc := service.NewCourseExportService(store, queue, exporter, access, logr)
	exportSvc.RecoverPendingJobs(ctx)
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)
	logr.Info("course exports enabled", zap.String("dir", files.Root()), zap.Duration("link_ttl", signer.TTL()))
	return exportSvc, queue, nil
}
