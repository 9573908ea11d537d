package queue

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/model"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNewEvents(t *testing.T) {
	sale := NewSaleCompletedEvent(
		model.Sale{ID: "s1", ProductID: "p1", Quantity: 3, Total: 3000, CreatedAt: at},
		model.Product{ID: "p1", Name: "Lamp", Inventory: 2},
	)
	assert.Equal(t, int64(3000), sale.TotalCents)
	assert.Equal(t, 2, sale.InventoryLeft)
	assert.Equal(t, "2024-05-01T12:00:00Z", sale.CompletedAt)

	name := "Ana"
	ticket := NewTicketPurchasedEvent(
		model.Ticket{ID: "t1", RaffleID: "r1", TicketNumber: 7, BuyerName: &name, CreatedAt: at},
		model.Raffle{ID: "r1", Name: "Bike", SoldTickets: 7, TotalTickets: 10},
	)
	assert.Equal(t, "Ana", ticket.BuyerName)
	assert.Empty(t, ticket.BuyerEmail)
	assert.Equal(t, 7, ticket.TicketNumber)
	assert.Equal(t, 3, ticket.Remaining)
}

func TestHandleMessageWritesActivityLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	c := NewConsumer("amqp://unused", dir, logger.Discard())
	f, err := c.openActivityLog()
	require.NoError(t, err)
	defer f.Close()

	body, _ := json.Marshal(SaleCompletedEvent{SaleID: "s1", ProductName: "Lamp", Quantity: 3, TotalCents: 3000})
	require.NoError(t, c.handleMessage(SaleCompletedQueue, body))
	body, _ = json.Marshal(TicketPurchasedEvent{TicketID: "t1", RaffleName: "Bike", TicketNumber: 1})
	require.NoError(t, c.handleMessage(TicketPurchasedQueue, body))

	assert.Error(t, c.handleMessage(SaleCompletedQueue, []byte("{not json")))
	assert.Error(t, c.handleMessage("orders.created", []byte("{}")))

	rf, err := os.Open(filepath.Join(dir, ActivityLogName))
	require.NoError(t, err)
	defer rf.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(rf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "Sale completed", lines[0]["msg"])
	assert.Equal(t, "Lamp", lines[0]["product"])
	assert.Equal(t, float64(3000), lines[0]["total_cents"])
	assert.Equal(t, "Ticket purchased", lines[1]["msg"])
	assert.Equal(t, float64(1), lines[1]["ticket_number"])
}
