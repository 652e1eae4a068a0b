package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/gin-gonic/gin"

	"skillgauge/api"
	"skillgauge/config"
	"skillgauge/database"
	"skillgauge/events"
	"skillgauge/middleware"
	"skillgauge/repository"
	"skillgauge/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to load configuration: %v", err)
	}

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to initialize database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("FATAL: [Main] Failed to auto-migrate database: %v", err)
	}

	// Repositories
	questionRepo := repository.NewQuestionRepository(db)
	if cfg.Redis.Addr != "" {
		cache := repository.NewRedisPoolCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, time.Duration(cfg.Redis.PoolTTLSecond)*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cache.Ping(ctx); err != nil {
			log.Printf("WARN: [Main] Redis at %s is unreachable (%v); question pools are read from the database.", cfg.Redis.Addr, err)
			cache.Close()
		} else {
			defer cache.Close()
			questionRepo = repository.NewCachedQuestionRepository(questionRepo, cache)
			log.Printf("INFO: [Main] Question pool cache enabled (redis=%s, ttl=%ds).", cfg.Redis.Addr, cfg.Redis.PoolTTLSecond)
		}
		cancel()
	}
	roundRepo := repository.NewRoundRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	log.Println("INFO: [Main] Repositories initialized.")

	publisher := events.NewNopPublisher()
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Printf("WARN: [Main] Result events disabled: %v", err)
		} else {
			publisher = rabbit
		}
	}
	defer publisher.Close()

	// Services
	sampler := services.NewQuotaSampler(rand.New(rand.NewSource(time.Now().UnixNano())), cfg.Assessment.RedistributeShortfall)
	sessionService := services.NewSessionService(sessionRepo, questionRepo, roundRepo, sampler, services.SystemClock)
	scoringService := services.NewScoringService(
		sessionRepo,
		questionRepo,
		roundRepo,
		services.NewBreakdownAnalyzer(),
		publisher,
		cfg.Assessment.DefaultPassingPercentage,
		services.SystemClock,
	)
	feedbackService := services.NewFeedbackService(cfg.Feedback)
	log.Println("INFO: [Main] Services initialized.")

	apiHandler := api.NewAPIHandler(sessionService, scoringService, feedbackService, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.SetTrustedProxies(nil)
	r.Use(middleware.Logger())
	r.Use(middleware.Cors(cfg.Server.AllowedOrigins))
	if cfg.Auth.JWTSecret == "" {
		log.Println("WARN: [Main] auth.jwt_secret is empty; worker IDs are taken from requests as-is.")
	}
	apiHandler.RegisterRoutes(r, middleware.WorkerIdentity(cfg.Auth.JWTSecret))
	log.Println("INFO: [Main] Routes registered.")

	serverPort := ":" + cfg.Server.Port
	if cfg.Server.Port == "" {
		log.Println("WARN: [Main] Server port not configured, using default :8080.")
		serverPort = ":8080"
	}
	log.Printf("INFO: [Main] Starting server on port %s", serverPort)
	if err := r.Run(serverPort); err != nil {
		log.Fatalf("FATAL: [Main] Server failed to start: %v", err)
	}
}
