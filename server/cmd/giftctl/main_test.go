package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/server/transport"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/gate4ai/giftmessage/shared/config"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, open storeOpener, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(open)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestValidate(t *testing.T) {
	out, _, err := execute(t, nil, "", "validate", "  Happy <b>birthday</b>  ", "   ")
	require.NoError(t, err)
	assert.Equal(t, "ok\tHappy birthday\nempty\n", out)
}

func TestValidate_Rejected(t *testing.T) {
	out, _, err := execute(t, nil, "", "validate", "--max-length", "5", "fine", "too long", "<script>x</script>")
	assert.ErrorIs(t, err, errRejected)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ok\tfine", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "too_long\t"))
	assert.True(t, strings.HasPrefix(lines[2], "too_long\t"), "length is checked before content")
}

func TestValidate_Stdin(t *testing.T) {
	out, _, err := execute(t, nil, "Thanks!\n<iframe src=x></iframe>\n", "validate")
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "ok\tThanks!")
	assert.Contains(t, out, "unsafe_content\t")
}

func seededStore(t *testing.T) *order.MemoryStore {
	t.Helper()
	store := order.NewMemoryStore()
	for _, msg := range []string{"First, with comma", "", "Third"} {
		line := &commerce.OrderLine{Label: "Bear", Quantity: 1}
		if msg != "" {
			line.SetMeta(config.DefaultMetaKey, msg)
		}
		require.NoError(t, store.CreateOrder(context.Background(), &commerce.Order{
			CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
			Customer:  commerce.Customer{FirstName: "Ada"},
			Lines:     []*commerce.OrderLine{line},
		}))
	}
	return store
}

func TestExport_Stdout(t *testing.T) {
	store := seededStore(t)
	var gotDSN string
	open := func(ctx context.Context, dsn string) (order.Store, error) {
		gotDSN = dsn
		return store, nil
	}

	out, _, err := execute(t, open, "", "export", "--database-url", "postgres://shop", "--ids", "1,3", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "postgres://shop", gotDSN)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "First, with comma", records[1][6])
	assert.Equal(t, "3", records[2][0])
}

func TestExport_File(t *testing.T) {
	store := seededStore(t)
	open := func(context.Context, string) (order.Store, error) { return store, nil }
	path := filepath.Join(t.TempDir(), "out.csv")

	_, stderr, err := execute(t, open, "", "export", "--database-url", "postgres://shop", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported 3 orders")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"), "header plus two annotated lines")
}

func TestExport_Errors(t *testing.T) {
	t.Setenv("GIFTMESSAGE_DATABASE_URL", "")
	_, _, err := execute(t, nil, "", "export")
	assert.ErrorContains(t, err, "--database-url")

	failing := func(context.Context, string) (order.Store, error) { return nil, errors.New("refused") }
	_, _, err = execute(t, failing, "", "export", "--database-url", "postgres://shop")
	assert.ErrorContains(t, err, "refused")
}

func TestPrintEvent(t *testing.T) {
	var out bytes.Buffer
	printEvent(&out, &sse.Event{
		Event: []byte(transport.EventOrderCommitted),
		Data:  []byte(`{"order_id":7,"created_at":"2026-10-01T09:00:00Z","gift_messages":2}`),
	})
	printEvent(&out, &sse.Event{Event: []byte("other"), Data: []byte(`{}`)})
	assert.Equal(t, "2026-10-01T09:00:00Z\torder #7\tguest\t2 gift message(s)\n", out.String())
}
