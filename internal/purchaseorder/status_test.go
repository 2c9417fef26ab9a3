package purchaseorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoLines() []POItem {
	return []POItem{
		{ID: 1, ProductID: 10, Qty: 5},
		{ID: 2, ProductID: 11, Qty: 3},
	}
}

func TestDeriveStatusNothingReceived(t *testing.T) {
	got := DeriveStatus(POStatusApproved, twoLines(), map[int64]float64{})
	require.Equal(t, POStatusApproved, got)
}

func TestDeriveStatusPartial(t *testing.T) {
	got := DeriveStatus(POStatusApproved, twoLines(), map[int64]float64{1: 2})
	require.Equal(t, POStatusPartiallyReceived, got)
}

func TestDeriveStatusOneLineFull(t *testing.T) {
	got := DeriveStatus(POStatusApproved, twoLines(), map[int64]float64{1: 5})
	require.Equal(t, POStatusPartiallyReceived, got)
}

func TestDeriveStatusAllFull(t *testing.T) {
	got := DeriveStatus(POStatusPartiallyReceived, twoLines(), map[int64]float64{1: 5, 2: 3})
	require.Equal(t, POStatusReceived, got)
}

func TestDeriveStatusFloatDrift(t *testing.T) {
	items := []POItem{{ID: 1, ProductID: 10, Qty: 0.3}}
	got := DeriveStatus(POStatusApproved, items, map[int64]float64{1: 0.1 + 0.2})
	require.Equal(t, POStatusReceived, got)
}

func TestDeriveStatusTerminalUnchanged(t *testing.T) {
	received := map[int64]float64{1: 5, 2: 3}
	require.Equal(t, POStatusClosed, DeriveStatus(POStatusClosed, twoLines(), received))
	require.Equal(t, POStatusCancelled, DeriveStatus(POStatusCancelled, twoLines(), received))
}

func TestDeriveStatusDraftUnchanged(t *testing.T) {
	got := DeriveStatus(POStatusDraft, twoLines(), map[int64]float64{1: 2})
	require.Equal(t, POStatusDraft, got)
}

func TestDeriveStatusReceivedNeverMovesBack(t *testing.T) {
	got := DeriveStatus(POStatusReceived, twoLines(), map[int64]float64{1: 2})
	require.Equal(t, POStatusReceived, got)
}
