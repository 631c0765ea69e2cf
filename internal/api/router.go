package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/user/codeflare/internal/auth"
	"github.com/user/codeflare/pkg/logger"
)

// RouterConfig collects the dependencies of the HTTP surface.
type RouterConfig struct {
	Verifier       auth.TokenVerifier
	Sessions       *SessionHandlers
	GitHub         *GitHubHandlers
	RequestTimeout time.Duration // 0 = no application timeout
}

// NewRouter builds the HTTP handler for the whole API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/session", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier))
		r.Get("/", cfg.Sessions.Identity)
		r.Get("/data", cfg.Sessions.Data)
		r.Post("/favorites", cfg.Sessions.ToggleFavorite)
		r.Post("/recents", cfg.Sessions.AddRecent)
	})

	r.Route("/api/github", func(r chi.Router) {
		r.Get("/users/{username}/repos", cfg.GitHub.UserRepos)
		r.Route("/repos/{owner}/{repo}", func(r chi.Router) {
			r.Get("/", cfg.GitHub.Repo)
			r.Get("/contents", cfg.GitHub.Contents)
			r.Get("/contents/*", cfg.GitHub.Contents)
			r.Get("/issues", cfg.GitHub.Issues)
			r.Get("/issues/{number}", cfg.GitHub.Issue)
			r.Get("/issues/{number}/comments", cfg.GitHub.IssueComments)
			r.Get("/pulls", cfg.GitHub.Pulls)
		})
	})

	return r
}
