package api

import (
	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess = 0

	CodeTradeNotFound       = 1001
	CodeBalanceNotEnough    = 1003
	CodeAccountNotFound     = 1005
	CodeQuoteUnavailable    = 1006
	CodeSettlementSweepFail = 1007
)

// Response is the envelope of every JSON body the API returns.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// fail writes an error envelope. A zero code falls back to the HTTP status.
func fail(c *gin.Context, status, code int, message string) {
	if code == 0 {
		code = status
	}
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}
