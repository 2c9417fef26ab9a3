package purchaseorder

// qtyEpsilon absorbs float drift when comparing received quantities
// against ordered ones.
const qtyEpsilon = 1e-9

// DeriveStatus computes the order status implied by the received
// quantities per line. It is pure: callers persist the result.
//
// Rules: every line fully received makes the order RECEIVED; any
// received quantity at all makes it PARTIALLY_RECEIVED; with nothing
// received the current status stands. Terminal statuses never change
// and RECEIVED never moves backward.
func DeriveStatus(current POStatus, items []POItem, received map[int64]float64) POStatus {
	if current.Terminal() || current == POStatusDraft {
		return current
	}
	if len(items) == 0 {
		return current
	}
	full := true
	any := false
	for _, item := range items {
		got := received[item.ID]
		if got > qtyEpsilon {
			any = true
		}
		if got < item.Qty-qtyEpsilon {
			full = false
		}
	}
	switch {
	case full:
		return POStatusReceived
	case current == POStatusReceived:
		return current
	case any:
		return POStatusPartiallyReceived
	default:
		return current
	}
}
