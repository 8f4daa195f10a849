package server

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
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"taskflow/internal/cache"
	"taskflow/internal/config"
	"taskflow/internal/events"
	"taskflow/internal/handler"
	"taskflow/internal/middleware"
	"taskflow/internal/notification"
	"taskflow/internal/repository"
	"taskflow/internal/service"
	"taskflow/internal/sync"
)

type Server struct {
	Engine      *gin.Engine
	DB          *gorm.DB
	Config      *config.Config
	Coordinator *sync.Coordinator
	Deriver     *notification.Deriver
}

func Init(cfg *config.Config) (*Server, error) {
	// Run migrations before GORM connects
	migrateURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
	)
	m, err := migrate.New("file://migrations", migrateURL)
	if err != nil {
		return nil, fmt.Errorf("❌ failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("❌ failed to apply migrations: %w", err)
	}
	log.Println("✅ Migrations applied")

	// Setup GORM
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("❌ failed to connect to DB: %w", err)
	}
	log.Println("✅ Connected to database")

	// Initialize repositories
	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Synchronization core: store, bus, coordinator, deriver
	store := cache.NewStore(cfg.CacheTTL)
	bus := events.NewBus()
	taskService := service.NewTaskService(taskRepo, userRepo)
	coordinator := sync.NewCoordinator(store, taskService, bus, sync.NewDebouncer(cfg.DebounceInterval))

	deriver := notification.NewDeriver(notificationRepo, taskRepo, cfg.DeadlineLookahead, cfg.DeadlineScanInterval)
	deriver.Attach(bus)

	// Initialize handlers
	taskHandler := handler.NewTaskHandler(coordinator, taskRepo)
	notificationHandler := handler.NewNotificationHandler(deriver)

	// Setup Gin
	r := gin.Default()
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authorized := r.Group("/")
	authorized.Use(middleware.Identity())
	{
		// User-scope routes: own tasks only
		authorized.GET("/tasks", taskHandler.List(cache.ScopeUser))
		authorized.POST("/tasks", taskHandler.Create(cache.ScopeUser))
		authorized.POST("/tasks/:id/status", taskHandler.ChangeStatus(cache.ScopeUser))

		// Notification routes
		authorized.GET("/notifications", notificationHandler.List)
		authorized.POST("/notifications/read", notificationHandler.MarkRead)

		// Admin-scope routes
		admin := authorized.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/tasks", taskHandler.List(cache.ScopeAdmin))
			admin.POST("/tasks", taskHandler.Create(cache.ScopeAdmin))
			admin.PUT("/tasks/:id", taskHandler.Update(cache.ScopeAdmin))
			admin.POST("/tasks/:id/status", taskHandler.ChangeStatus(cache.ScopeAdmin))
			admin.DELETE("/tasks/:id", taskHandler.Delete(cache.ScopeAdmin))
			admin.POST("/tasks/bulk-assign", taskHandler.BulkAssign(cache.ScopeAdmin))
		}
	}

	return &Server{
		Engine:      r,
		DB:          db,
		Config:      cfg,
		Coordinator: coordinator,
		Deriver:     deriver,
	}, nil
}

func (s *Server) Run() {
	srv := &http.Server{
		Addr:    ":" + s.Config.ServerPort,
		Handler: s.Engine,
	}

	// Deadline sweep runs for the lifetime of the server
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go s.Deriver.Run(sweepCtx)

	go func() {
		log.Printf("🚀 Server running on port %s\n", s.Config.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	stopSweep()
	s.Coordinator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %s", err)
	}

	log.Println("✅ Server exited properly")
}
