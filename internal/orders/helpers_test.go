package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type observation struct {
	ProductID uuid.UUID
	Slug      string
	Stock     int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) ObserveStock(_ context.Context, productID uuid.UUID, slug string, stock int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{ProductID: productID, Slug: slug, Stock: stock})
}

func (r *recordingObserver) all() []observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observation(nil), r.seen...)
}

type harness struct {
	svc      Service
	conn     *gorm.DB
	observer *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	oracle, err := pricing.NewOracle(product.NewRepository(conn))
	require.NoError(t, err)
	observer := &recordingObserver{}
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(conn),
		Tx:            client,
		Oracle:        oracle,
		Outbox:        outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		StockObserver: observer,
		Now:           tickingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return &harness{svc: svc, conn: conn, observer: observer}
}

// tickingClock advances one second per call so history entries sort deterministically.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func adminActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Email: "ops@example.com", Role: enums.RoleAdmin}
}

func customerActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Email: "ada@example.com", Role: enums.RoleCustomer}
}

func shipping() types.ShippingInfo {
	return types.ShippingInfo{Name: "Ada Lovelace", Phone: "+1 555 0100", Line1: "1 Analytical Way", City: "London"}
}

func placeOrder(t *testing.T, h *harness, actor auth.Actor, items ...ItemInput) *models.Order {
	t.Helper()
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:        items,
		ShippingInfo: shipping(),
		Actor:        actor,
	})
	require.NoError(t, err)
	return order
}

func outboxTypes(t *testing.T, conn *gorm.DB) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}
