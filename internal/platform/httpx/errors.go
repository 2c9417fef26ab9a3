package httpx

import (
	"net/http"

	"github.com/stockline/stockline/internal/shared"
)

// RespondError maps a domain error to an RFC7807 problem response.
// Every error carries both a human readable detail and a machine
// readable kind; internal errors are never leaked verbatim.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	switch kind {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), string(kind))
	case shared.KindInvalidState:
		Problem(w, http.StatusConflict, "Invalid State", err.Error(), string(kind))
	case shared.KindOverReceipt:
		Problem(w, http.StatusUnprocessableEntity, "Over Receipt", err.Error(), string(kind))
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error(), string(kind))
	case shared.KindPartialCommit:
		// The document exists but later steps did not land; callers must
		// reconcile, so the detail is surfaced rather than hidden.
		Problem(w, http.StatusInternalServerError, "Partial Commit", err.Error(), string(kind))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "", string(shared.KindInternal))
	}
}
