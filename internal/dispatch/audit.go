package dispatch

import (
	"database/sql"

	"github.com/memogarden/memogarden/internal/ids"
	"github.com/memogarden/memogarden/internal/memerr"
	"github.com/memogarden/memogarden/internal/soil"
)

// actionPayload is the Action fact's data.
type actionPayload struct {
	RequestID string         `json:"request_id"`
	Op        string         `json:"op"`
	ActorUUID string         `json:"actor_uuid"`
	ActorType string         `json:"actor_type"`
	Params    map[string]any `json:"params"`
}

// actionResultPayload is the ActionResult fact's data, carrying either the
// handler's result or its structured error.
type actionResultPayload struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	OK        bool   `json:"ok"`
	Result    any    `json:"result,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
	Trace     string `json:"trace,omitempty"`
}

// writeActionTx inserts the pre-handler Action fact, redacting any
// parameter matched by redactPaths.
func writeActionTx(tx *sql.Tx, soilStore *soil.Store, requestID, op string, actor Actor, params map[string]any, redactPaths []string) (string, error) {
	redacted := redactParams(params, redactPaths)
	payload := actionPayload{
		RequestID: requestID,
		Op:        op,
		ActorUUID: actor.UUID,
		ActorType: string(actor.Type),
		Params:    redacted,
	}
	f, err := soil.BuildFact(soil.TypeAction, payload, nil, ids.NowFunc().UTC())
	// BuildFact marshals payload to canonical JSON bytes immediately, so the
	// pooled redacted map (if one was allocated) can be released as soon as
	// it returns regardless of outcome.
	if len(redactPaths) > 0 {
		ReleaseRedacted(redacted)
	}
	if err != nil {
		return "", err
	}
	if err := soilStore.InsertFactTx(tx, f); err != nil {
		return "", err
	}
	return f.ID, nil
}

// writeActionResultTx inserts the post-handler ActionResult fact and links
// it back to its Action by a result_of system relation.
func writeActionResultTx(tx *sql.Tx, soilStore *soil.Store, requestID, op string, actionFactID string, result any, handlerErr error) error {
	rp := actionResultPayload{RequestID: requestID, Op: op}
	if handlerErr == nil {
		rp.OK = true
		rp.Result = result
	} else if me, ok := memerr.As(handlerErr); ok {
		rp.OK = false
		rp.ErrorCode = string(me.Code)
		rp.ErrorMsg = me.Message
		if me.Code == "internal_error" {
			if diag, ok := me.Details["diagnostic_id"].(string); ok {
				rp.Trace = diag
			}
		}
	} else {
		rp.OK = false
		rp.ErrorCode = "internal_error"
		rp.ErrorMsg = handlerErr.Error()
	}

	f, err := soil.BuildFact(soil.TypeActionResult, rp, nil, ids.NowFunc().UTC())
	if err != nil {
		return err
	}
	if err := soilStore.InsertFactTx(tx, f); err != nil {
		return err
	}
	_, err = soil.InsertSystemRelationWithIDTx(tx, ids.NewID(ids.Soil), soil.RelResultOf,
		f.ID, string(soil.TypeActionResult), actionFactID, string(soil.TypeAction), nil, nil)
	return err
}
