// Package httpadmin serves the server's HTTP surface: an unauthenticated
// health check and Prometheus scrape endpoint, and a JWT-gated
// read-only admin API for inspecting the live world.
package httpadmin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lattice-mud/lattice/internal/logging"
	"github.com/lattice-mud/lattice/internal/metrics"
	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/world"
)

// Claims is the JWT payload issued to an authenticated administrator.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// AuthService issues and validates admin JWTs.
type AuthService struct {
	key    []byte
	expiry time.Duration
}

// NewAuthService builds an AuthService. An empty secret generates a
// random 32-byte key, matching the teacher's "don't fail startup over a
// missing secret" behavior.
func NewAuthService(secret string, expiry time.Duration) *AuthService {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		rand.Read(key)
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthService{key: key, expiry: expiry}
}

// IssueToken signs a token for subject (the admin username).
func (a *AuthService) IssueToken(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "lattice",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// Validate parses and verifies a bearer token.
func (a *AuthService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Credentials is the fixed administrator login the login endpoint
// accepts (cmd/server fills it from flags or environment); kept
// narrow (a single username/password pair) since the spec
// treats administration as an external collaborator, not a full
// multi-admin account system.
type Credentials struct {
	Username string
	Password string
}

// Server serves the admin HTTP API.
type Server struct {
	auth     *AuthService
	creds    Credentials
	model    *world.Model
	registry *registry.Registry
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      logging.Sink
	mux      *http.ServeMux
}

// New builds a Server and registers its routes.
func New(auth *AuthService, creds Credentials, model *world.Model, reg *registry.Registry, m *metrics.Metrics, gatherer prometheus.Gatherer, log logging.Sink) *Server {
	s := &Server{auth: auth, creds: creds, model: model, registry: reg, metrics: m, gatherer: gatherer, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler(s.gatherer))
	}
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/objects/", s.requireAuth(http.HandlerFunc(s.handleObject)))
	s.mux.Handle("/api/registry", s.requireAuth(http.HandlerFunc(s.handleRegistry)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.creds.Password)) == 1
	if !userOK || !passOK {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.auth.IssueToken(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// requireAuth gates next behind a valid "Authorization: Bearer <token>" header.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authz, "Bearer ")
		if token == "" || token == authz {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, err := s.auth.Validate(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// objectView is the public projection of world.Thing served by the
// admin API — it deliberately excludes the embedded Player/GameObject
// pointers, since Player carries a bcrypt PasswordHash that has no
// business leaving the process over HTTP.
type objectView struct {
	ID       world.ID    `json:"id"`
	DBRef    world.DBRef `json:"dbref"`
	ClassID  world.ID    `json:"classId"`
	Name     string      `json:"name"`
	Location world.ID    `json:"location"`
	IsPlayer bool        `json:"isPlayer"`
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id := world.ID(strings.TrimPrefix(r.URL.Path, "/api/objects/"))
	thing, ok := s.model.GetThing(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such object")
		return
	}
	writeJSON(w, http.StatusOK, objectView{
		ID: thing.ID, DBRef: thing.DBRef, ClassID: thing.ClassID,
		Name: thing.Name, Location: thing.Location, IsPlayer: thing.IsPlayer,
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Current()
	writeJSON(w, http.StatusOK, map[string]int{
		"verbs":     snap.VerbCount(),
		"functions": snap.FunctionCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
