package server

import (
	"errors"
	"net/http"

	"isamples-modelserver/internal/taxonomy"
)

// ErrInvalidRequest is matched by every error caused by a malformed or
// unserviceable request body.
var ErrInvalidRequest = errors.New("invalid request")

const (
	msgOpenContextType = "Unable to serve specified model type. Valid types are 'sample' and 'material'."
	msgSESARType       = "Unable to serve specified model type. The only valid type is 'material'."
	msgSmithsonianType = "Unable to serve specified model type. The only valid type is 'context'."
	msgInputRequired   = "Input parameter is required."
	msgRecordRequired  = "source_record is required."
)

type requestError struct {
	msg string
}

func invalidRequest(msg string) error {
	return &requestError{msg: msg}
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Is(target error) bool { return target == ErrInvalidRequest }

// apiError is an error translated to its HTTP form.
type apiError struct {
	status    int
	exception string
	message   string
}

type detailBody struct {
	Detail string `json:"detail"`
}

type conflictBody struct {
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

// translateError maps refused records to 409 and everything else to 500.
// Invalid requests are 500 as well, which existing callers rely on.
func translateError(err error) apiError {
	if me, ok := taxonomy.AsMetadataError(err); ok {
		return apiError{status: http.StatusConflict, exception: string(me.Kind), message: me.Message}
	}
	return apiError{status: http.StatusInternalServerError, message: err.Error()}
}

func (e apiError) body() interface{} {
	if e.status == http.StatusConflict {
		return conflictBody{Exception: e.exception, Message: e.message}
	}
	return detailBody{Detail: e.message}
}
