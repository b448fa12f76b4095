package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/neurascale/neural-engine/pkg/datastorage/validation"
)

// discoveryDefaultTimeout is used for GET /v1/devices/discover when the
// caller omits ?timeout=.
const discoveryDefaultTimeout = 2 * time.Second

// parseTimeoutQuery reads "timeout" as a count of seconds (spec.md §6:
// "?timeout=Ns"), falling back to def when absent or unparsable.
func parseTimeoutQuery(r *http.Request, def time.Duration) time.Duration {
	raw := r.URL.Query().Get("timeout")
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// parseSeqRangeQuery reads "from"/"to" as the ledger sequence range for
// GET /v1/ledger/verify (spec.md §6). Both are optional; an absent
// bound is returned as 0, which LedgerGateway.VerifyAll treats as "from
// the beginning" / "up to each shard's current tip" respectively.
func parseSeqRangeQuery(r *http.Request) (from, to uint64, problem *validation.RFC7807Problem) {
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, validation.NewValidationErrorProblem("from", map[string]string{"from": "must be a non-negative integer"})
		}
		from = v
	}
	if raw := q.Get("to"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, validation.NewValidationErrorProblem("to", map[string]string{"to": "must be a non-negative integer"})
		}
		to = v
	}
	return from, to, nil
}
