package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

// MCPService manages user-registered tool server definitions.
type MCPService struct {
	store  store.Store
	logger *slog.Logger
}

func NewMCPService(s store.Store, logger *slog.Logger) *MCPService {
	return &MCPService{
		store:  s,
		logger: logger.With("service", "mcp-servers"),
	}
}

func mapMCPServerToResponse(m *models.MCPServer) *models.MCPServerResponse {
	return &models.MCPServerResponse{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Code:        m.Code,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (s *MCPService) CreateMCPServer(ctx context.Context, userID uuid.UUID, req models.CreateMCPServerRequest) (*models.MCPServerResponse, error) {
	if req.Name == "" || req.Code == "" {
		return nil, fmt.Errorf("%w: name and code are required", ErrValidation)
	}

	srv, err := s.store.CreateMCPServer(ctx, store.CreateMCPServerParams{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Code:        req.Code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp server: %w", err)
	}

	s.logger.Info("mcp server created", "mcp_server_id", srv.ID, "user_id", userID)
	return mapMCPServerToResponse(srv), nil
}

func (s *MCPService) GetMCPServer(ctx context.Context, userID, serverID uuid.UUID) (*models.MCPServerResponse, error) {
	srv, err := s.store.GetMCPServerByID(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	return mapMCPServerToResponse(srv), nil
}

func (s *MCPService) ListMCPServers(ctx context.Context, userID uuid.UUID) (*models.ListMCPServersResponse, error) {
	servers, err := s.store.ListMCPServersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp servers: %w", err)
	}

	resp := make([]models.MCPServerResponse, 0, len(servers))
	for i := range servers {
		resp = append(resp, *mapMCPServerToResponse(&servers[i]))
	}
	return &models.ListMCPServersResponse{MCPServers: resp}, nil
}

func (s *MCPService) UpdateMCPServer(ctx context.Context, userID, serverID uuid.UUID, req models.UpdateMCPServerRequest) (*models.MCPServerResponse, error) {
	if req.Name == nil && req.Description == nil && req.Code == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	srv, err := s.store.UpdateMCPServer(ctx, store.UpdateMCPServerParams{
		ID:          serverID,
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Code:        req.Code,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("mcp server updated", "mcp_server_id", serverID, "user_id", userID)
	return mapMCPServerToResponse(srv), nil
}

func (s *MCPService) DeleteMCPServer(ctx context.Context, userID, serverID uuid.UUID) error {
	if err := s.store.DeleteMCPServer(ctx, serverID, userID); err != nil {
		return err
	}
	s.logger.Info("mcp server deleted", "mcp_server_id", serverID, "user_id", userID)
	return nil
}
