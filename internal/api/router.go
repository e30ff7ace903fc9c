package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"agentchat-backend/internal/config"
	"agentchat-backend/internal/handlers"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler  *handlers.AuthHandler
	AgentHandler *handlers.AgentHandlers
	MCPHandler   *handlers.MCPHandlers
	ChatHandler  *handlers.ChatHandlers
	Config       *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	// No global request timeout: streaming responses stay open for the
	// whole agent run. The run deadline lives in the chat service.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1/auth", func(r chi.Router) {
		if deps.AuthHandler == nil {
			panic("AuthHandler dependency is nil in router setup")
		}
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
	})

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

		// --- Mount Agent Routes ---
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", deps.AgentHandler.HandleCreateAgent)
			r.Get("/", deps.AgentHandler.HandleListAgents)
			r.Post("/cache/reset", deps.AgentHandler.HandleResetCache)
			r.Get("/{agentID}", deps.AgentHandler.HandleGetAgent)
			r.Patch("/{agentID}", deps.AgentHandler.HandleUpdateAgent)
			r.Delete("/{agentID}", deps.AgentHandler.HandleDeleteAgent)

			// Agent <-> tool server mapping
			r.Post("/{agentID}/mcp-servers", deps.AgentHandler.HandleAttachMCPServer)
			r.Delete("/{agentID}/mcp-servers/{serverID}", deps.AgentHandler.HandleDetachMCPServer)
		})

		// --- Mount MCP Server Routes ---
		r.Route("/mcp-servers", func(r chi.Router) {
			r.Post("/", deps.MCPHandler.HandleCreateMCPServer)
			r.Get("/", deps.MCPHandler.HandleListMCPServers)
			r.Get("/{serverID}", deps.MCPHandler.HandleGetMCPServer)
			r.Patch("/{serverID}", deps.MCPHandler.HandleUpdateMCPServer)
			r.Delete("/{serverID}", deps.MCPHandler.HandleDeleteMCPServer)
		})

		// --- Mount Chat Routes ---
		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", deps.ChatHandler.HandleCreateSession)
			r.Get("/", deps.ChatHandler.HandleListSessions)
			r.Get("/{sessionID}", deps.ChatHandler.HandleGetSession)
			r.Patch("/{sessionID}", deps.ChatHandler.HandleUpdateSession)
			r.Delete("/{sessionID}", deps.ChatHandler.HandleDeleteSession)

			// Message APIs
			r.Post("/{sessionID}/messages", deps.ChatHandler.HandleSendMessage)
			r.Post("/{sessionID}/messages/stream", deps.ChatHandler.HandleStreamMessage)
		})
	})

	return r
}
