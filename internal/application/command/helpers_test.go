package command_test

import (
	"context"
	"testing"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/shared"
	"github.com/classpoints/points-engine/internal/infrastructure/service"
	"github.com/classpoints/points-engine/internal/testutil"
)

const (
	studentA = "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"
	studentB = "2c0e7dce-ccfe-4c3e-8c6e-bc9efccd5cfe"
	tenantA  = "6ec0bd7f-11c0-43da-975e-2a8ad9ebae0b"
)

// env bundles the in-memory store with a real commit pipeline, so command
// tests exercise the same transactional semantics as production wiring.
type env struct {
	store *testutil.MemStore
	bus   *testutil.CaptureBus
	svc   *service.LedgerService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewMemStore()
	bus := &testutil.CaptureBus{}
	svc := service.NewLedgerService(store, bus, nil, nil, service.LedgerServiceConfig{
		LevelSize:           100,
		AchievementsEnabled: true,
	})
	return &env{store: store, bus: bus, svc: svc}
}

func staffActor() shared.Actor {
	return shared.Actor{ID: "staff-1", Role: shared.RoleStaff}
}

func adminActor() shared.Actor {
	return shared.Actor{ID: "admin-1", Role: shared.RoleAdmin}
}

func (e *env) awardHandler() *command.AwardPointsHandler {
	return command.NewAwardPointsHandler(e.svc, e.store, nil, e.bus, command.DefaultAwardPointsHandlerConfig())
}

// fund commits points/coins to a student below the moderation threshold.
func (e *env) fund(t *testing.T, studentID string, points, coins int) {
	t.Helper()
	_, err := e.awardHandler().Handle(context.Background(), command.AwardPointsCommand{
		StudentID: studentID,
		TenantID:  tenantA,
		Points:    points,
		Coins:     coins,
		Reason:    "test balance",
		Category:  "manual",
		Actor:     staffActor(),
	})
	if err != nil {
		t.Fatalf("funding student: %v", err)
	}
}
