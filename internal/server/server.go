package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kitsunehq/kitsune-backend/internal/database"
	"github.com/kitsunehq/kitsune-backend/internal/handlers"
	"github.com/kitsunehq/kitsune-backend/internal/middleware"
)

type Server struct {
	db      database.Service
	handler *handlers.Handler
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(db database.Service, handler *handlers.Handler) *http.Server {
	s := &Server{
		db:      db,
		handler: handler,
	}

	router := s.RegisterRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // local dev fallback
	}

	return &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Every visitor gets a stable anonymous id for vote attribution.
	r.Use(middleware.AnonymousID())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.db.Health())
	})

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)

		// Question routes (public reads, anonymous votes allowed)
		api.GET("/questions", s.handler.Question.ListQuestions)
		api.GET("/questions/:id", s.handler.Question.GetQuestion)
		api.GET("/questions/:id/answers", s.handler.Answer.ListAnswers)
		api.POST("/questions/:id/vote", s.handler.Vote.VoteQuestion)
		api.GET("/questions/:id/vote", s.handler.Vote.HasVotedQuestion)
		api.POST("/answers/:id/vote", s.handler.Vote.VoteAnswer)

		// User routes (public reads)
		api.GET("/users/:username", s.handler.User.GetUserProfile)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/me", s.handler.Auth.GetMe)
			protected.PUT("/me", s.handler.User.UpdateProfile)

			// Question protected routes
			protected.POST("/questions", s.handler.Question.CreateQuestion)
			protected.PUT("/questions/:id", s.handler.Question.UpdateQuestion)
			protected.DELETE("/questions/:id", s.handler.Question.DeleteQuestion)
			protected.POST("/questions/:id/solve", s.handler.Question.SolveQuestion)
			protected.DELETE("/questions/:id/solve", s.handler.Question.UnsolveQuestion)
			protected.POST("/questions/:id/take", s.handler.Question.TakeQuestion)
			protected.POST("/questions/:id/lock", s.handler.Question.LockQuestion)
			protected.POST("/questions/:id/archive", s.handler.Question.ArchiveQuestion)
			protected.POST("/questions/:id/spam", s.handler.Question.MarkQuestionSpam)
			protected.POST("/questions/:id/metadata", s.handler.Question.AddQuestionMetadata)

			// Answer protected routes
			protected.POST("/questions/:id/answers", s.handler.Answer.CreateAnswer)
			protected.PUT("/answers/:id", s.handler.Answer.UpdateAnswer)
			protected.DELETE("/answers/:id", s.handler.Answer.DeleteAnswer)
			protected.POST("/answers/:id/spam", s.handler.Answer.MarkAnswerSpam)

			// Moderation routes
			protected.POST("/flags", s.handler.Flag.CreateFlag)
			protected.GET("/flags", s.handler.Flag.ListFlags)
			protected.PUT("/flags/:id", s.handler.Flag.UpdateFlag)
		}
	}

	return r
}
