// Package feed turns PostgreSQL NOTIFY payloads into typed change messages.
// Triggers on supplier_transactions and transaction_items publish row images
// as JSON; delivery is at-least-once, consumers deduplicate.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stocksync/internal/core/id"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
)

// Notification channels the adapter listens on. They match the trigger
// definitions in migrations.
const (
	ChannelTransactions = "transaction_changes"
	ChannelItems        = "transaction_item_changes"
)

// ChangeType is the row-level operation reported by the trigger.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Kind classifies the typed message delivered downstream.
type Kind string

const (
	// KindTransactionCompleted: a supplier transaction reached completed
	// status and should be synced as a whole.
	KindTransactionCompleted Kind = "transaction_completed"

	// KindItemChanged: a transaction item was inserted or updated.
	KindItemChanged Kind = "item_changed"

	// KindItemDeleted: a transaction item was deleted; its effects must be
	// reversed.
	KindItemDeleted Kind = "item_deleted"
)

// Message is one decoded change ready for the worker.
type Message struct {
	Kind   Kind
	Change ChangeType

	// TransactionID is set for transaction-level messages.
	TransactionID id.ID

	// Item carries the row image for item-level messages. For deletions it
	// is the OLD image, otherwise the NEW one.
	Item *transaction.TransactionItem
}

// notification is the raw trigger payload: {"event": ..., "old": ..., "new": ...}.
type notification struct {
	Event ChangeType      `json:"event"`
	Old   json.RawMessage `json:"old"`
	New   json.RawMessage `json:"new"`
}

// transactionRow is the subset of the supplier_transactions row image the
// adapter needs for filtering.
type transactionRow struct {
	ID     id.ID              `json:"id"`
	Type   transaction.Type   `json:"type"`
	Status transaction.Status `json:"status"`
}

// itemRow mirrors the transaction_items row image produced by row_to_json.
type itemRow struct {
	ID             id.ID                   `json:"id"`
	TransactionID  id.ID                   `json:"transaction_id"`
	Version        int64                   `json:"version"`
	ProductID      id.ID                   `json:"product_id"`
	Quantity       int64                   `json:"quantity"`
	UnitCost       json.Number             `json:"unit_cost"`
	TotalCost      json.Number             `json:"total_cost"`
	ProductUnitIDs []id.ID                 `json:"product_unit_ids"`
	UnitDetails    transaction.UnitDetails `json:"unit_details"`
	CreatedAt      time.Time               `json:"created_at"`
}

// Adapter consumes the change feed over a dedicated pool connection.
type Adapter struct {
	pool *pgxpool.Pool
	log  *logger.Logger

	// reconnect backoff bounds
	minBackoff time.Duration
	maxBackoff time.Duration
}

// New creates a change feed adapter.
func New(pool *pgxpool.Pool, log *logger.Logger) *Adapter {
	return &Adapter{
		pool:       pool,
		log:        log.WithComponent("feed"),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run listens for notifications and pushes decoded messages to out until the
// context is cancelled. Connection loss triggers reconnect with capped
// backoff; anything missed while disconnected is re-driven by the triggers
// only for new changes, which is why consumers keep an idempotency ledger
// rather than trusting exactly-once delivery.
func (a *Adapter) Run(ctx context.Context, out chan<- Message) error {
	backoff := a.minBackoff

	for {
		if err := a.listen(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Errorw("change feed connection lost, reconnecting",
				"error", err,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, a.maxBackoff)
			continue
		}
		backoff = a.minBackoff
	}
}

// listen holds one connection, subscribes to both channels and dispatches
// notifications until an error occurs.
func (a *Adapter) listen(ctx context.Context, out chan<- Message) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	for _, channel := range []string{ChannelTransactions, ChannelItems} {
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			return fmt.Errorf("listen %s: %w", channel, err)
		}
	}
	a.log.Infow("change feed connected",
		"channels", []string{ChannelTransactions, ChannelItems},
	)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		a.handle(ctx, n.Channel, n.Payload, out)
	}
}

// handle decodes one payload. Malformed payloads are logged and dropped so
// one bad row cannot stall the feed.
func (a *Adapter) handle(ctx context.Context, channel, payload string, out chan<- Message) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		a.log.Errorw("malformed feed payload, dropping",
			"channel", channel,
			"error", err,
		)
		return
	}

	var (
		msg Message
		ok  bool
	)
	switch channel {
	case ChannelTransactions:
		msg, ok = a.decodeTransaction(n)
	case ChannelItems:
		msg, ok = a.decodeItem(n)
	default:
		a.log.Warnw("notification on unknown channel, dropping", "channel", channel)
		return
	}
	if !ok {
		return
	}

	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

// decodeTransaction filters transaction changes down to completed purchases.
func (a *Adapter) decodeTransaction(n notification) (Message, bool) {
	if n.Event == ChangeDelete {
		return Message{}, false
	}

	var row transactionRow
	if err := json.Unmarshal(n.New, &row); err != nil {
		a.log.Errorw("malformed transaction row image, dropping", "error", err)
		return Message{}, false
	}

	if row.Status != transaction.StatusCompleted {
		return Message{}, false
	}

	return Message{
		Kind:          KindTransactionCompleted,
		Change:        n.Event,
		TransactionID: row.ID,
	}, true
}

// decodeItem produces an item message. Deletions carry the OLD row image.
func (a *Adapter) decodeItem(n notification) (Message, bool) {
	raw := n.New
	kind := KindItemChanged
	if n.Event == ChangeDelete {
		raw = n.Old
		kind = KindItemDeleted
	}

	var row itemRow
	if err := json.Unmarshal(raw, &row); err != nil {
		a.log.Errorw("malformed item row image, dropping", "error", err)
		return Message{}, false
	}

	item, err := row.toItem()
	if err != nil {
		a.log.Errorw("invalid item row image, dropping", "item_id", row.ID, "error", err)
		return Message{}, false
	}

	return Message{
		Kind:   kind,
		Change: n.Event,
		Item:   item,
	}, true
}

// toItem converts the row image into the domain item.
func (r itemRow) toItem() (*transaction.TransactionItem, error) {
	unitCost, err := decimalFromNumber(r.UnitCost)
	if err != nil {
		return nil, fmt.Errorf("unit_cost: %w", err)
	}
	totalCost, err := decimalFromNumber(r.TotalCost)
	if err != nil {
		return nil, fmt.Errorf("total_cost: %w", err)
	}

	return &transaction.TransactionItem{
		ID:             r.ID,
		TransactionID:  r.TransactionID,
		Version:        r.Version,
		ProductID:      r.ProductID,
		Quantity:       r.Quantity,
		UnitCost:       unitCost,
		TotalCost:      totalCost,
		ProductUnitIDs: r.ProductUnitIDs,
		UnitDetails:    r.UnitDetails,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
