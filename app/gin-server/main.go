package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/config"
	"github.com/yoockh/hiready/internal/api/handlers"
	"github.com/yoockh/hiready/internal/api/middleware"
	"github.com/yoockh/hiready/internal/api/routes"
	"github.com/yoockh/hiready/internal/cache"
	"github.com/yoockh/hiready/internal/call"
	"github.com/yoockh/hiready/internal/entitlement"
	"github.com/yoockh/hiready/internal/logger"
	"github.com/yoockh/hiready/internal/providers/llm"
	"github.com/yoockh/hiready/internal/providers/voice"
	"github.com/yoockh/hiready/internal/ratelimit"
	mongorepo "github.com/yoockh/hiready/internal/repositories/mongo"
	pgrepo "github.com/yoockh/hiready/internal/repositories/postgres"
	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	settings, err := config.LoadSettings(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("settings load error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.InitPostgres(settings); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	if err := config.InitMongo(settings); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	redisOK := false
	if settings.RedisAddr != "" {
		if err := config.InitRedis(settings); err != nil {
			log.WithError(err).Fatal("Redis init error")
		}
		redisOK = true
		log.Info("Redis connected")
	} else {
		log.Warn("REDIS_ADDR not set: job info cache and feedback queue disabled")
	}

	store, closeStore := rateLimitStore(settings, redisOK, log)
	defer closeStore()
	limiter := ratelimit.New(store, ratelimit.Policy{
		Capacity: settings.RateLimitCapacity,
		Refill:   settings.RateLimitRefill,
		Interval: settings.RateLimitInterval,
	})

	// repositories
	users := pgrepo.NewUserRepo(config.PostgresDB)
	jobRepo := pgrepo.NewJobInfoRepo(config.PostgresDB)
	interviewRepo := pgrepo.NewInterviewRepo(config.PostgresDB)
	transcriptRepo := mongorepo.NewTranscriptRepo(config.MongoDatabase())

	var jobCache cache.Cache = cache.Nop{}
	if redisOK {
		jobCache = cache.NewRedisCache(config.RedisClient)
	}

	checker := entitlement.NewChecker(users)
	evaluator := entitlement.NewEvaluator(log,
		entitlement.Unlimited(checker),
		entitlement.SingleTrial(checker, interviewRepo),
	)

	// services
	userSvc := services.NewUserService(users)
	jobSvc := services.NewJobInfoService(jobRepo, jobCache, settings.JobInfoCacheTTL, log)
	interviewSvc := services.NewInterviewService(interviewRepo, jobSvc)
	admissionSvc := services.NewAdmissionService(evaluator, limiter, jobSvc, interviewRepo, log)
	transcriptSvc := services.NewTranscriptService(transcriptRepo, interviewSvc, settings.TranscriptTTL)

	var gemini llm.Provider
	if settings.VertexProject != "" {
		g, err := llm.NewVertexGemini(ctx, settings.VertexProject, settings.VertexLocation, settings.VertexModel)
		if err != nil {
			log.WithError(err).Fatal("Vertex AI init error")
		}
		defer g.Close()
		gemini = g
	} else {
		log.Warn("VERTEX_PROJECT not set: feedback generation disabled")
	}
	feedbackSvc := services.NewFeedbackService(interviewRepo, jobRepo, users, transcriptSvc, gemini, log)

	var feedbackQueue call.FeedbackQueue
	if redisOK && gemini != nil {
		feedbackQueue = &workers.FeedbackQueue{Redis: config.RedisClient}
		pool := &workers.FeedbackWorkerPool{
			Redis:      config.RedisClient,
			Feedback:   feedbackSvc,
			NumWorkers: settings.FeedbackWorkers,
			Logger:     log,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("feedback worker start error")
		}
	}

	voiceClient := voice.NewClient(voice.Config{
		URL:      settings.VoiceURL,
		APIKey:   settings.VoiceAPIKey,
		ConfigID: settings.VoiceConfigID,
		Logger:   log,
	})

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Auth: middleware.JWTConfig{
			Secret:   settings.JWTSecret,
			Issuer:   settings.JWTIssuer,
			Audience: settings.JWTAudience,
		},
		JobInfo:   handlers.NewJobInfoHandler(jobSvc),
		Interview: handlers.NewInterviewHandler(admissionSvc, interviewSvc, transcriptSvc, feedbackSvc),
		User:      handlers.NewUserHandler(userSvc),
		Call: handlers.NewCallHandler(handlers.CallHandlerDeps{
			Admission:   admissionSvc,
			Jobs:        jobSvc,
			Interviews:  interviewSvc,
			Transcripts: transcriptSvc,
			Feedback:    feedbackQueue,
			Voice:       voiceClient,
			Heartbeat:   settings.HeartbeatInterval,
			Logger:      log,
		}),
	})

	log.WithField("port", settings.Port).Info("http server starting")
	if err := r.Run(":" + settings.Port); err != nil {
		log.WithError(err).Fatal("http server stopped")
	}
}

// rateLimitStore picks the bucket backend. Redis is the only one shared across
// API processes.
func rateLimitStore(s config.Settings, redisOK bool, log *logrus.Logger) (ratelimit.Store, func()) {
	switch s.RateLimitBackend {
	case "badger":
		db, err := config.OpenBadger(s.BadgerPath)
		if err != nil {
			log.WithError(err).Fatal("badger open error")
		}
		return ratelimit.NewBadgerStore(db), func() { closeBadger(db, log) }
	case "redis":
		if redisOK {
			return ratelimit.NewRedisStore(config.RedisClient), func() {}
		}
		log.Warn("rate limit backend redis requested without REDIS_ADDR; using memory")
	}
	return ratelimit.NewMemoryStore(0), func() {}
}

func closeBadger(db *badger.DB, log *logrus.Logger) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("badger close error")
	}
}
