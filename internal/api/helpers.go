package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeFailure reports a pipeline error with the status errorStatus assigns it.
func writeFailure(c *echo.Context, err error) error {
	status, errType := errorStatus(err)
	return writeError(c, status, errType, err.Error(), "", "")
}

// decodeJSON reads one JSON value and rejects unknown fields, so a misspelled operator
// field is an error rather than a silently different operator.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, newInvalidRequest("empty request body")
		}
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}

func newRunID() string {
	return "run_" + uuid.NewString()
}
