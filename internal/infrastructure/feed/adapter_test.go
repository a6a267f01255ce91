package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stocksync/internal/core/id"
	"stocksync/internal/domain/transaction"
	"stocksync/pkg/logger"
)

func testAdapter() *Adapter {
	return New(nil, &logger.Logger{SugaredLogger: zap.NewNop().Sugar()})
}

func TestDecodeTransaction_CompletedUpdatePasses(t *testing.T) {
	a := testAdapter()
	txID := id.New()

	payload := notification{
		Event: ChangeUpdate,
		New:   json.RawMessage(`{"id":"` + txID.String() + `","type":"purchase","status":"completed"}`),
	}

	msg, ok := a.decodeTransaction(payload)
	require.True(t, ok)
	assert.Equal(t, KindTransactionCompleted, msg.Kind)
	assert.Equal(t, txID, msg.TransactionID)
}

func TestDecodeTransaction_FiltersNonCompleted(t *testing.T) {
	a := testAdapter()

	payload := notification{
		Event: ChangeUpdate,
		New:   json.RawMessage(`{"id":"` + id.New().String() + `","type":"purchase","status":"pending"}`),
	}

	_, ok := a.decodeTransaction(payload)
	assert.False(t, ok, "only completed transactions may pass the filter")
}

func TestDecodeTransaction_IgnoresDeletes(t *testing.T) {
	a := testAdapter()

	payload := notification{
		Event: ChangeDelete,
		Old:   json.RawMessage(`{"id":"` + id.New().String() + `","status":"completed"}`),
	}

	_, ok := a.decodeTransaction(payload)
	assert.False(t, ok)
}

func TestDecodeItem_InsertCarriesNewImage(t *testing.T) {
	a := testAdapter()
	itemID := id.New()
	txID := id.New()
	productID := id.New()
	unitID := id.New()

	raw := `{
		"id": "` + itemID.String() + `",
		"transaction_id": "` + txID.String() + `",
		"version": 2,
		"product_id": "` + productID.String() + `",
		"quantity": 3,
		"unit_cost": 149.99,
		"total_cost": 449.97,
		"product_unit_ids": ["` + unitID.String() + `"],
		"unit_details": {"entries": [{"serial": "SN-1", "color": "black"}]},
		"created_at": "2026-08-30T10:00:00Z"
	}`

	msg, ok := a.decodeItem(notification{Event: ChangeInsert, New: json.RawMessage(raw)})
	require.True(t, ok)
	assert.Equal(t, KindItemChanged, msg.Kind)

	item := msg.Item
	require.NotNil(t, item)
	assert.Equal(t, itemID, item.ID)
	assert.Equal(t, txID, item.TransactionID)
	assert.Equal(t, int64(2), item.Version)
	assert.Equal(t, int64(3), item.Quantity)
	assert.Equal(t, "149.99", item.UnitCost.String())
	require.Len(t, item.ProductUnitIDs, 1)
	assert.Equal(t, unitID, item.ProductUnitIDs[0])
	require.Len(t, item.UnitDetails.Entries, 1)
	assert.Equal(t, transaction.UnitEntry{SerialNumber: "SN-1", Color: "black"}, item.UnitDetails.Entries[0])
}

func TestDecodeItem_DeleteCarriesOldImage(t *testing.T) {
	a := testAdapter()
	itemID := id.New()

	raw := `{
		"id": "` + itemID.String() + `",
		"transaction_id": "` + id.New().String() + `",
		"version": 5,
		"product_id": "` + id.New().String() + `",
		"quantity": 1,
		"unit_cost": 10,
		"total_cost": 10,
		"product_unit_ids": [],
		"unit_details": {},
		"created_at": "2026-08-30T10:00:00Z"
	}`

	msg, ok := a.decodeItem(notification{Event: ChangeDelete, Old: json.RawMessage(raw)})
	require.True(t, ok)
	assert.Equal(t, KindItemDeleted, msg.Kind)
	assert.Equal(t, itemID, msg.Item.ID)
	assert.Equal(t, int64(5), msg.Item.Version)
}

func TestDecodeItem_MalformedPayloadDropped(t *testing.T) {
	a := testAdapter()

	_, ok := a.decodeItem(notification{Event: ChangeInsert, New: json.RawMessage(`{"id": 42}`)})
	assert.False(t, ok)
}
