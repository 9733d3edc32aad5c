// Package handler provides response helpers for statistics endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// codeStoreUnavailable signals that a rollup query against the local store
// failed.
const codeStoreUnavailable = "STORE_UNAVAILABLE"

// errorBody carries the machine-readable failure code and a safe message.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope returned by statistics endpoints on failure.
type ErrorResponse struct {
	Error errorBody `json:"error"`
}

// storeUnavailable reports a failed rollup query. The underlying cause stays
// in the server log and never reaches the response body.
func storeUnavailable(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: errorBody{
			Code:    codeStoreUnavailable,
			Message: "statistics are temporarily unavailable",
		},
	})
}
