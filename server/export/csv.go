// Package export produces the admin CSV of gift messages.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/shared/commerce"
)

// TimeLayout formats the order creation timestamp column
const TimeLayout = "2006-01-02 15:04:05"

// Header is the first CSV row
var Header = []string{
	"Order ID",
	"Order Date",
	"Customer Name",
	"Customer Email",
	"Product",
	"Quantity",
	"Gift Message",
}

// Exporter writes one row per (order, annotated line) pair
type Exporter struct {
	adapter *display.Adapter
}

// New creates an exporter reading messages through adapter
func New(adapter *display.Adapter) *Exporter {
	return &Exporter{adapter: adapter}
}

// WriteCSV streams the export to w. Orders keep the given order, lines keep
// their order within each order.
func (e *Exporter) WriteCSV(w io.Writer, orders []*commerce.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range orders {
		created := o.CreatedAt.UTC().Format(TimeLayout)
		for _, entry := range e.adapter.CollectForOrder(o) {
			record := []string{
				strconv.FormatInt(o.ID, 10),
				created,
				o.Customer.FullName(),
				o.Customer.Email,
				entry.LineLabel,
				strconv.Itoa(entry.Quantity),
				entry.Text,
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write csv row for order %d: %w", o.ID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// GenerateCSV returns the whole export in memory
func (e *Exporter) GenerateCSV(orders []*commerce.Order) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.WriteCSV(&buf, orders); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename returns the download name for an export created at t
func Filename(t time.Time) string {
	return fmt.Sprintf("gift-messages-%s.csv", t.Format("2006-01-02-150405"))
}
