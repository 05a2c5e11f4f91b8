package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, ActorFromContext(ctx))
	require.Equal(t, "buyer", ActorFromContext(ContextWithActor(ctx, "buyer")))
}

func TestAuditLogValidate(t *testing.T) {
	require.NoError(t, AuditLog{Action: "approve", Entity: "rfq", EntityID: "RFQ-001"}.Validate())
	require.Error(t, AuditLog{Action: "approve", Entity: "rfq"}.Validate())
}

func TestAuditLoggerRequiresPool(t *testing.T) {
	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
	require.Error(t, NewAuditLogger(nil).Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
}
