package server

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listenup/listenup/common/logger"
)

type AppAPIServerConfig struct {
	HTTPServerConfig
}

type AppAPIServer struct {
	APIServer
}

func NewAppAPIServer(coreAPI *AppAPIRouter, config AppAPIServerConfig, httpServerFactory HTTPServerFactory, logFactory logger.LogFactory) (*AppAPIServer, error) {
	httpServer, err := httpServerFactory(coreAPI, config.HTTPServerConfig, logFactory("AppAPIServer"))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP server: %w", err)
	}
	return &AppAPIServer{
		APIServer: httpServer,
	}, nil
}

type AppAPIRouter struct {
	chi.Router
}

func NewAppAPIRouter(
	job *JobAPI,
	asset *AssetAPI,
	root *RootAPI,
	logFactory logger.LogFactory) *AppAPIRouter {

	logger := logFactory("AppAPIRouter").
		WithField("version", "v1")

	middleware.DefaultLogger = middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true})
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Compress(6))

	core := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/", root.GetRootDocument)
			r.Post("/jobs", job.Create)
			r.Get("/jobs/{job_id}", job.Get)
			r.Post("/jobs/{job_id}/retry", job.Retry)
			r.Get("/users/{user_id}/jobs", job.ListUserJobs)
			r.Get("/users/{user_id}/assets", asset.List)
			r.Post("/users/{user_id}/assets", asset.Upload)
		})

		// Event streams stay open until the watcher disconnects, so they
		// are routed around the request timeout above.
		r.Get("/jobs/{job_id}/events", job.Events)
	}

	r.Route("/api", func(r chi.Router) {

		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Link", "Id", "Location"},
			AllowCredentials: true,
			MaxAge:           300, // Maximum value not ignored by any of major browsers
		}))

		r.Route("/v1", core)
	})

	// Pipeline clients that predate API versioning address the same routes
	// at the server root.
	core(r)

	return &AppAPIRouter{Router: r}
}
