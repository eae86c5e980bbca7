// Package api provides REST API endpoints for aircraft registry lookups.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"registry_db/internal/storage"
)

// RegistryServer provides REST API access to the consolidated registry.
type RegistryServer struct {
	store       *storage.Store
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the registry API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewRegistryServer creates a new registry API server.
func NewRegistryServer(store *storage.Store, cfg Config) *RegistryServer {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &RegistryServer{
		store:       store,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *RegistryServer) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	// API routes.
	r.Route("/api/v1", func(r chi.Router) {
		// Health check.
		r.Get("/health", s.handleHealth)

		// Registry lookups.
		r.Get("/aircraft", s.handleSearch)
		r.Get("/aircraft/{icao24}", s.handleGetAircraft)
		r.Get("/registration/{n_number}", s.handleGetByRegistration)
		r.Get("/stats", s.handleStats)
	})

	addr := ":" + itoa(s.port)
	log.Printf("Registry API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *RegistryServer) Router() chi.Router {
	r := chi.NewRouter()

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/aircraft", s.handleSearch)
	r.Get("/aircraft/{icao24}", s.handleGetAircraft)
	r.Get("/registration/{n_number}", s.handleGetByRegistration)
	r.Get("/stats", s.handleStats)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *RegistryServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AircraftResponse is the JSON response for registry lookups.
type AircraftResponse struct {
	ICAO24       string `json:"icao24"`
	NNumber      string `json:"n_number"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model,omitempty"`
	Operator     string `json:"operator,omitempty"`
	Name         string `json:"name,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`
	OwnerType    string `json:"owner_type,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func aircraftToResponse(a *storage.Aircraft) AircraftResponse {
	return AircraftResponse{
		ICAO24:       a.ICAO24,
		NNumber:      a.NNumber,
		Manufacturer: a.Manufacturer,
		Model:        a.Model,
		Operator:     a.Operator,
		Name:         a.Name,
		City:         a.City,
		State:        a.State,
		AircraftType: a.AircraftType,
		OwnerType:    a.OwnerType,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    a.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *RegistryServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *RegistryServer) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	icao24 := chi.URLParam(r, "icao24")
	if icao24 == "" {
		writeError(w, http.StatusBadRequest, "icao24 is required")
		return
	}

	aircraft, err := s.store.GetByICAO24(icao24)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if aircraft == nil {
		writeError(w, http.StatusNotFound, "Aircraft not found")
		return
	}

	writeJSON(w, http.StatusOK, aircraftToResponse(aircraft))
}

func (s *RegistryServer) handleGetByRegistration(w http.ResponseWriter, r *http.Request) {
	nNumber := strings.ToUpper(chi.URLParam(r, "n_number"))
	if nNumber == "" {
		writeError(w, http.StatusBadRequest, "n_number is required")
		return
	}

	aircraft, err := s.store.GetByNNumber(nNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if aircraft == nil {
		writeError(w, http.StatusNotFound, "Registration not found")
		return
	}

	writeJSON(w, http.StatusOK, aircraftToResponse(aircraft))
}

func (s *RegistryServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	results, err := s.store.Query(storage.QueryParams{
		Manufacturer: q.Get("manufacturer"),
		Model:        q.Get("model"),
		Operator:     q.Get("operator"),
		AircraftType: q.Get("aircraft_type"),
		OwnerType:    q.Get("owner_type"),
		State:        q.Get("state"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responses := make([]AircraftResponse, 0, len(results))
	for i := range results {
		responses = append(responses, aircraftToResponse(&results[i]))
	}

	writeJSON(w, http.StatusOK, responses)
}

// StatsResponse is the JSON response for registry statistics.
type StatsResponse struct {
	TotalAircraft    int            `json:"total_aircraft"`
	Manufacturers    int            `json:"manufacturers"`
	ByAircraftType   map[string]int `json:"by_aircraft_type"`
	ByOwnerType      map[string]int `json:"by_owner_type"`
	TopManufacturers map[string]int `json:"top_manufacturers"`
}

func (s *RegistryServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalAircraft:    stats.TotalAircraft,
		Manufacturers:    stats.Manufacturers,
		ByAircraftType:   stats.ByAircraftType,
		ByOwnerType:      stats.ByOwnerType,
		TopManufacturers: stats.TopManufacturers,
	})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
