package order_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// startPostgres launches a throwaway PostgreSQL container. Set
// GIFTMESSAGE_INTEGRATION=1 to run tests that need it.
func startPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv("GIFTMESSAGE_INTEGRATION") == "" {
		t.Skip("set GIFTMESSAGE_INTEGRATION=1 to run PostgreSQL integration tests")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "giftmessage",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgresql://postgres:password@%s:%s/giftmessage?sslmode=disable", host, mappedPort.Port())
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := order.NewPostgresStore(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	created := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	o := &commerce.Order{
		CreatedAt: created,
		Status:    commerce.StatusProcessing,
		Customer:  commerce.Customer{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"},
		Lines: []*commerce.OrderLine{
			{ProductID: 1, Label: "Bear", Quantity: 2, Meta: map[string]string{"_gift_message": "Congratulations!!! 🎉"}},
			{ProductID: 2, Label: "Card", Quantity: 1},
			{ProductID: 1, Label: "Bear", Quantity: 1, Meta: map[string]string{"_gift_message": "Line\nbreak, \"quoted\""}},
		},
	}
	require.NoError(t, store.CreateOrder(ctx, o))
	require.NotZero(t, o.ID)

	got, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, "Grace Hopper", got.Customer.FullName())
	require.Len(t, got.Lines, 3)
	assert.Equal(t, "Congratulations!!! 🎉", got.Lines[0].MetaValue("_gift_message"))
	assert.Empty(t, got.Lines[1].Meta)
	assert.Equal(t, "Line\nbreak, \"quoted\"", got.Lines[2].MetaValue("_gift_message"))

	_, err = store.GetOrder(ctx, o.ID+1000)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	second := &commerce.Order{Status: commerce.StatusProcessing, Lines: []*commerce.OrderLine{{ProductID: 3, Label: "Mug", Quantity: 1}}}
	require.NoError(t, store.CreateOrder(ctx, second))

	all, err := store.ListOrders(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, o.ID, all[0].ID)

	one, err := store.ListOrders(ctx, []int64{second.ID})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Mug", one[0].Lines[0].Label)
}
