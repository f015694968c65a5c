// l2p-scope Web Server
// Exposes the live track table, telescope status, and feed controls
// over a REST API so remote operators can watch the station.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/l2p-scope/internal/app"
	"github.com/unklstewy/l2p-scope/internal/auth"
	"github.com/unklstewy/l2p-scope/internal/observability"
	"github.com/unklstewy/l2p-scope/pkg/config"
	"github.com/unklstewy/l2p-scope/pkg/coordinates"
	"github.com/unklstewy/l2p-scope/pkg/ingest"
	"github.com/unklstewy/l2p-scope/pkg/logging"
	"github.com/unklstewy/l2p-scope/pkg/tracking"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	listenAddr = flag.String("listen", "", "Listen address override (host:port)")
	replayFile = flag.String("replay", "", "Replay a recorded feed file instead of connecting live")
)

// contextKey keeps request-scoped auth values from colliding with keys
// set by other packages.
type contextKey string

const (
	ctxUsername contextKey = "username"
	ctxRole     contextKey = "role"
)

// Server holds the HTTP server and its dependencies
type Server struct {
	router  *chi.Mux
	sup     *ingest.Supervisor
	authSvc *auth.Service
	metrics *observability.FeedCollector
	cfg     *config.Config
	log     *logging.Logger
	start   time.Time
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *replayFile != "" {
		cfg.Replay.File = *replayFile
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		Path:   cfg.Logging.File,
		Level:  cfg.Logging.Level,
		Stderr: true,
	})
	log.Infof("🚀 Starting l2p-scope Web Server...")

	// Wire the feed engine
	sup, _, err := app.BuildSupervisor(cfg, log, "")
	if err != nil {
		log.Errorf("Failed to build feed engine: %v", err)
		os.Exit(1)
	}

	// Register Prometheus metrics over the engine
	metrics, err := observability.NewFeedCollector(nil, sup)
	if err != nil {
		log.Errorf("Failed to register metrics: %v", err)
		os.Exit(1)
	}

	// Initialize auth service
	authSvc := auth.NewService(auth.Config{
		Username:      cfg.Web.Username,
		PasswordHash:  cfg.Web.PasswordHash,
		JWTSecret:     cfg.Web.JWTSecret,
		TokenDuration: cfg.Web.TokenExpiry(),
	})
	if !cfg.Web.OpsEnabled() {
		log.Warnf("Operator credentials not configured; /api/v1/ops endpoints are disabled")
	}

	// Create server
	srv := &Server{
		router:  chi.NewRouter(),
		sup:     sup,
		authSvc: authSvc,
		metrics: metrics,
		cfg:     cfg,
		log:     log,
		start:   time.Now(),
	}
	srv.setupRoutes()

	// Start ingesting
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	// Start HTTP server
	addr := cfg.Web.Addr()
	if *listenAddr != "" {
		addr = *listenAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("📡 Server listening on http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Server failed: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal. A finished replay keeps serving its
	// final track table until the operator quits.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("👋 Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	sup.Stop()

	log.Infof("✅ Server stopped")
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	// CORS for dashboard development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Web.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/tracks", s.handleGetTracks)
		r.Get("/tracks/{id}", s.handleGetTrack)
		r.Get("/telescope", s.handleGetTelescope)
		r.Get("/status", s.handleGetStatus)

		// Operator routes need configured credentials
		if !s.cfg.Web.OpsEnabled() {
			return
		}
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleGetCurrentUser)

			r.Post("/ops/reconnect", s.handleReconnect)
			r.Post("/ops/tracks/clear", s.handleClearTracks)
		})
	})
}

// Auth middleware
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		// Extract token (format: "Bearer <token>")
		var token string
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		} else {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		// Validate token
		claims, err := s.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleHealth reports liveness for probes and load balancers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"state":  s.sup.State().String(),
	})
}

// handleLogin handles operator login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.authSvc.Authenticate(req.Username, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user": map[string]interface{}{
			"username": req.Username,
			"role":     auth.RoleAdmin,
		},
	})
}

// handleLogout handles operator logout. Tokens are stateless, so there
// is nothing to invalidate server-side; clients drop theirs.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleGetCurrentUser returns the currently authenticated operator
func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(ctxUsername).(string)
	role, _ := r.Context().Value(ctxRole).(string)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"role":     role,
	})
}

// trackResponse is the wire shape of one track. Stored azimuths are
// radians and altitudes meters; the API reports degrees and meters.
type trackResponse struct {
	ID           string  `json:"id"`
	Callsign     string  `json:"callsign"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	AltitudeM    float64 `json:"altitude_m"`
	RangeKm      float64 `json:"range_km"`
	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
	Samples      int     `json:"samples"`
	MaxElevation float64 `json:"max_elevation_deg"`
	Gap          bool    `json:"gap"`
	LastEpoch    float64 `json:"last_epoch"`
}

func toTrackResponse(t tracking.Track) trackResponse {
	resp := trackResponse{
		ID:           t.ID,
		Callsign:     t.Callsign,
		Samples:      len(t.Samples),
		MaxElevation: t.MaxElevation,
		Gap:          t.Gap,
		LastEpoch:    t.LastEpoch,
	}
	if last, ok := t.LastSample(); ok {
		resp.Latitude = last.Latitude
		resp.Longitude = last.Longitude
		resp.AltitudeM = last.Altitude
		resp.RangeKm = last.Range
		resp.AzimuthDeg = coordinates.NormalizeAzimuthDeg(coordinates.RadToDeg(last.Azimuth))
		resp.ElevationDeg = last.Elevation
	}
	return resp
}

// handleGetTracks returns every live track
func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.sup.Snapshot()

	response := make([]trackResponse, len(tracks))
	for i, t := range tracks {
		response[i] = toTrackResponse(t)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(response),
		"tracks": response,
	})
}

// handleGetTrack returns one track by aircraft ID
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	track, ok := s.sup.Track(id)
	if !ok {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, toTrackResponse(track))
}

// handleGetTelescope returns the latest mount status from the feed
func (s *Server) handleGetTelescope(w http.ResponseWriter, r *http.Request) {
	ts := s.sup.TelescopeStatus()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mjd":           ts.MJD,
		"epoch":         ts.Epoch,
		"azimuth_deg":   ts.Azimuth,
		"elevation_deg": ts.Elevation,
		"valid":         ts.Valid,
	})
}

// handleGetStatus returns the engine state and counters
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":          s.sup.State().String(),
		"uptime_seconds": int64(time.Since(s.start).Seconds()),
		"tracks":         s.sup.Tracks(),
		"station": map[string]interface{}{
			"name":      s.cfg.Station.Name,
			"latitude":  s.cfg.Station.Latitude,
			"longitude": s.cfg.Station.Longitude,
			"height_m":  s.cfg.Station.HeightM,
			"time_zone": s.cfg.Station.TimeZone,
		},
		"stats": s.sup.Stats(),
	})
}

// handleReconnect asks the engine to rebuild its transport
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(ctxUsername).(string)
	s.log.Infof("Reconnect requested by %s", username)

	s.sup.RequestReconnect()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   s.sup.State().String(),
	})
}

// handleClearTracks drops the live track table
func (s *Server) handleClearTracks(w http.ResponseWriter, r *http.Request) {
	username, _ := r.Context().Value(ctxUsername).(string)
	s.log.Infof("Track table cleared by %s", username)

	s.sup.ClearTracks()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tracks":  s.sup.Tracks(),
	})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}
