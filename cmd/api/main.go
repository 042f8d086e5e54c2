package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/kitsunehq/kitsune-backend/internal/analytics"
	"github.com/kitsunehq/kitsune-backend/internal/cache"
	"github.com/kitsunehq/kitsune-backend/internal/database"
	"github.com/kitsunehq/kitsune-backend/internal/handlers"
	"github.com/kitsunehq/kitsune-backend/internal/llm"
	"github.com/kitsunehq/kitsune-backend/internal/questions"
	"github.com/kitsunehq/kitsune-backend/internal/reporting"
	"github.com/kitsunehq/kitsune-backend/internal/server"
	"github.com/kitsunehq/kitsune-backend/internal/tasks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.New()
	defer db.Close()

	// Redis is optional; without it derived-field caching is disabled.
	var c *cache.Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		var err error
		c, err = cache.New(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer c.Close()
		log.Println("✅ Redis connected successfully")
	}

	sink := reporting.NewLogSink()
	dispatcher := tasks.New(sink)

	// Classifier is optional; without it new questions skip straight to the
	// moderation queue.
	var classifier questions.Classifier
	if os.Getenv("OPENAI_API_KEY") != "" {
		cl, err := llm.NewOpenAIClassifier()
		if err != nil {
			log.Fatalf("Failed to initialize classifier: %v", err)
		}
		classifier = cl
	} else {
		slog.Warn("OPENAI_API_KEY not set, automatic question classification disabled")
	}

	svc := questions.NewService(db.GetDB(), c, dispatcher, sink, classifier)
	svc.RegisterJobs()

	scheduler := tasks.NewScheduler(dispatcher)
	scheduler.Every(24*time.Hour, questions.JobCleanupOldSpam, nil)
	scheduler.Every(time.Hour, questions.JobScheduleVoteChunks, nil)

	// Analytics reconciliation is optional; it needs a GA4 property.
	if os.Getenv("GA4_PROPERTY_ID") != "" {
		source, err := analytics.NewGA4Source(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize analytics source: %v", err)
		}
		reconciler := analytics.NewReconciler(db.GetDB(), source)
		reconciler.RegisterJobs(dispatcher)
		scheduler.Every(24*time.Hour, analytics.JobReloadQuestionVisits, nil)
	} else {
		slog.Warn("GA4_PROPERTY_ID not set, question visit reconciliation disabled")
	}

	dispatcher.Start(ctx, 4)
	scheduler.Start(ctx)

	handler := handlers.NewHandler(db.GetDB(), svc)
	srv := server.NewServer(db, handler)

	go func() {
		log.Printf("🚀 Server starting on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	dispatcher.Wait()
	scheduler.Wait()
	log.Println("Server stopped")
}
