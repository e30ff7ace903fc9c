package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"agentchat-backend/internal/auth"
	applog "agentchat-backend/internal/log"
	"agentchat-backend/internal/models"
	"agentchat-backend/internal/store"
)

func strPtr(s string) *string { return &s }

func newAgentService(t *testing.T) (*AgentService, *fakeStore, *fakeRuntime) {
	t.Helper()
	fs := newFakeStore()
	rt := &fakeRuntime{runner: &fakeRunner{pool: &fakeRunPool{}}}
	return NewAgentService(fs, rt, applog.NewNop()), fs, rt
}

func seedDefaultAgent(t *testing.T, fs *fakeStore) *models.Agent {
	t.Helper()
	ag, err := fs.CreateAgent(context.Background(), store.CreateAgentParams{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Name:         "Assistant",
		SystemPrompt: "be helpful",
		IsDefault:    true,
	})
	if err != nil {
		t.Fatalf("seeding default agent: %v", err)
	}
	return ag
}

func TestEnsureDefaultAgent_SeedsOnce(t *testing.T) {
	svc, fs, _ := newAgentService(t)
	ctx := context.Background()

	if err := svc.EnsureDefaultAgent(ctx); err != nil {
		t.Fatalf("EnsureDefaultAgent() unexpected error: %v", err)
	}

	def, err := fs.GetDefaultAgent(ctx)
	if err != nil {
		t.Fatalf("GetDefaultAgent() after seeding: %v", err)
	}
	if !def.IsDefault || def.Name != "Tooler" || def.SystemPrompt == "" {
		t.Errorf("seeded default agent = %+v, want Tooler with a prompt", def)
	}

	// The owning system account exists and cannot authenticate.
	owner, err := fs.GetUserByID(ctx, def.UserID)
	if err != nil {
		t.Fatalf("GetUserByID(owner) after seeding: %v", err)
	}
	if auth.CheckPasswordHash("", owner.HashedPassword) || auth.CheckPasswordHash("!", owner.HashedPassword) {
		t.Error("system user hash matches a password")
	}

	// A second call is a no-op.
	if err := svc.EnsureDefaultAgent(ctx); err != nil {
		t.Fatalf("EnsureDefaultAgent() second call: %v", err)
	}
	agents, _ := fs.ListAgentsForUser(ctx, owner.ID)
	if len(agents) != 1 {
		t.Errorf("seeding twice created %d agents, want 1", len(agents))
	}
	if again, _ := fs.GetDefaultAgent(ctx); again.ID != def.ID {
		t.Errorf("default agent id changed from %s to %s", def.ID, again.ID)
	}
}

func TestEnsureDefaultAgent_ExistingDefault(t *testing.T) {
	svc, fs, _ := newAgentService(t)
	def := seedDefaultAgent(t, fs)

	if err := svc.EnsureDefaultAgent(context.Background()); err != nil {
		t.Fatalf("EnsureDefaultAgent() unexpected error: %v", err)
	}

	got, err := fs.GetDefaultAgent(context.Background())
	if err != nil || got.ID != def.ID {
		t.Errorf("default agent = %+v (err %v), want the pre-existing %s untouched", got, err, def.ID)
	}
	if _, err := fs.GetUserByEmail(context.Background(), systemUserEmail); err == nil {
		t.Error("system user created even though a default agent already existed")
	}
}

func TestCreateAgent_Validation(t *testing.T) {
	svc, _, _ := newAgentService(t)

	tests := []struct {
		name string
		req  models.CreateAgentRequest
	}{
		{name: "missing name", req: models.CreateAgentRequest{SystemPrompt: "p"}},
		{name: "missing prompt", req: models.CreateAgentRequest{Name: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateAgent(context.Background(), uuid.New(), tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateAgent() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUpdateAgent_InvalidatesCache(t *testing.T) {
	svc, fs, rt := newAgentService(t)
	userID := uuid.New()
	ag, _ := fs.CreateAgent(context.Background(), store.CreateAgentParams{
		ID: uuid.New(), UserID: userID, Name: "mine", SystemPrompt: "old",
	})

	resp, err := svc.UpdateAgent(context.Background(), userID, ag.ID, models.UpdateAgentRequest{
		SystemPrompt: strPtr("new"),
	})
	if err != nil {
		t.Fatalf("UpdateAgent() unexpected error: %v", err)
	}
	if resp.SystemPrompt != "new" {
		t.Errorf("updated prompt = %q, want %q", resp.SystemPrompt, "new")
	}
	if len(rt.invalidated) != 1 || rt.invalidated[0] != ag.ID {
		t.Errorf("invalidated = %v, want [%s]", rt.invalidated, ag.ID)
	}
}

func TestUpdateAgent_DefaultAgentPromptOnly(t *testing.T) {
	svc, fs, rt := newAgentService(t)
	def := seedDefaultAgent(t, fs)
	userID := uuid.New()

	// Any user may retune the default agent's prompt.
	if _, err := svc.UpdateAgent(context.Background(), userID, def.ID, models.UpdateAgentRequest{
		SystemPrompt: strPtr("sharper"),
	}); err != nil {
		t.Fatalf("UpdateAgent(prompt) unexpected error: %v", err)
	}
	if len(rt.invalidated) != 1 {
		t.Errorf("invalidated %d runners, want 1", len(rt.invalidated))
	}

	// Everything else on the default agent is fixed.
	tests := []struct {
		name string
		req  models.UpdateAgentRequest
	}{
		{name: "name", req: models.UpdateAgentRequest{Name: strPtr("x")}},
		{name: "description", req: models.UpdateAgentRequest{Description: strPtr("x")}},
		{name: "model", req: models.UpdateAgentRequest{Model: strPtr("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.UpdateAgent(context.Background(), userID, def.ID, tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("UpdateAgent(%s) error = %v, want ErrValidation", tt.name, err)
			}
		})
	}
}

func TestUpdateAgent_NoFields(t *testing.T) {
	svc, fs, _ := newAgentService(t)
	userID := uuid.New()
	ag, _ := fs.CreateAgent(context.Background(), store.CreateAgentParams{
		ID: uuid.New(), UserID: userID, Name: "mine", SystemPrompt: "p",
	})

	if _, err := svc.UpdateAgent(context.Background(), userID, ag.ID, models.UpdateAgentRequest{}); !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateAgent(empty) error = %v, want ErrValidation", err)
	}
}

func TestDeleteAgent_DefaultRefused(t *testing.T) {
	svc, fs, _ := newAgentService(t)
	def := seedDefaultAgent(t, fs)

	if err := svc.DeleteAgent(context.Background(), uuid.New(), def.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("DeleteAgent(default) error = %v, want ErrValidation", err)
	}
	if _, err := fs.GetAgentByID(context.Background(), def.ID); err != nil {
		t.Error("default agent was deleted")
	}
}

func TestDeleteAgent_NotOwner(t *testing.T) {
	svc, fs, _ := newAgentService(t)
	owner := uuid.New()
	ag, _ := fs.CreateAgent(context.Background(), store.CreateAgentParams{
		ID: uuid.New(), UserID: owner, Name: "mine", SystemPrompt: "p",
	})

	if err := svc.DeleteAgent(context.Background(), uuid.New(), ag.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("DeleteAgent(stranger) error = %v, want ErrNotAuthorized", err)
	}
}

func TestAttachMCPServer(t *testing.T) {
	svc, fs, rt := newAgentService(t)
	userID := uuid.New()
	ctx := context.Background()

	ag, _ := fs.CreateAgent(ctx, store.CreateAgentParams{
		ID: uuid.New(), UserID: userID, Name: "mine", SystemPrompt: "p",
	})
	srv, _ := fs.CreateMCPServer(ctx, store.CreateMCPServerParams{
		ID: uuid.New(), UserID: userID, Name: "weather", Code: "print('hi')",
	})

	if err := svc.AttachMCPServer(ctx, userID, ag.ID, models.AttachMCPServerRequest{MCPServerID: srv.ID}); err != nil {
		t.Fatalf("AttachMCPServer() unexpected error: %v", err)
	}

	active, _ := fs.ListActiveAgentMCPServers(ctx, ag.ID)
	if len(active) != 1 || active[0].ID != srv.ID {
		t.Errorf("active servers = %+v, want the attached server", active)
	}
	if len(rt.invalidated) != 1 || rt.invalidated[0] != ag.ID {
		t.Errorf("invalidated = %v, want [%s]", rt.invalidated, ag.ID)
	}

	// A server the caller does not own cannot be attached.
	other, _ := fs.CreateMCPServer(ctx, store.CreateMCPServerParams{
		ID: uuid.New(), UserID: uuid.New(), Name: "theirs", Code: "x",
	})
	if err := svc.AttachMCPServer(ctx, userID, ag.ID, models.AttachMCPServerRequest{MCPServerID: other.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AttachMCPServer(foreign) error = %v, want ErrNotFound", err)
	}
}

func TestDetachMCPServer(t *testing.T) {
	svc, fs, rt := newAgentService(t)
	userID := uuid.New()
	ctx := context.Background()

	ag, _ := fs.CreateAgent(ctx, store.CreateAgentParams{
		ID: uuid.New(), UserID: userID, Name: "mine", SystemPrompt: "p",
	})
	srv, _ := fs.CreateMCPServer(ctx, store.CreateMCPServerParams{
		ID: uuid.New(), UserID: userID, Name: "weather", Code: "x",
	})
	fs.AttachMCPServer(ctx, ag.ID, srv.ID, true)

	if err := svc.DetachMCPServer(ctx, userID, ag.ID, srv.ID); err != nil {
		t.Fatalf("DetachMCPServer() unexpected error: %v", err)
	}
	active, _ := fs.ListActiveAgentMCPServers(ctx, ag.ID)
	if len(active) != 0 {
		t.Errorf("active servers = %+v, want none after detach", active)
	}
	if len(rt.invalidated) != 1 {
		t.Errorf("invalidated %d runners, want 1", len(rt.invalidated))
	}
}

func TestResetCache(t *testing.T) {
	svc, _, rt := newAgentService(t)

	id := uuid.New()
	svc.ResetCache(&id)
	if len(rt.invalidated) != 1 || rt.invalidated[0] != id {
		t.Errorf("invalidated = %v, want [%s]", rt.invalidated, id)
	}

	svc.ResetCache(nil)
	if rt.invalidatedAll != 1 {
		t.Errorf("InvalidateAll called %d times, want 1", rt.invalidatedAll)
	}
}
