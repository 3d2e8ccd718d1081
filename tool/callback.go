package tool

import (
	"maps"

	"github.com/gin-gonic/gin"
)

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"data": data,
	}
}

func FastReturnErrorWithData(msg string, data map[string]any) gin.H {
	resp := gin.H{
		"error": msg,
	}
	maps.Copy(resp, data)
	return resp
}

// FastReturnState answers console actions: the outcome message plus the new state.
func FastReturnState(msg string, state any) gin.H {
	resp := gin.H{
		"data": state,
	}
	if msg != "" {
		resp["error"] = msg
	}
	return resp
}
