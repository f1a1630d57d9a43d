package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/internal/apperr"
	"webmail/pkg/logger"
)

// gin context keys set by the auth middleware
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// currentUser 读取鉴权中间件写入的用户身份
func currentUser(c *gin.Context) (int64, string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, "", false
	}
	userID, ok := v.(int64)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return 0, "", false
	}
	return userID, c.GetString(CtxRole), true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id parameter"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// writeError 把 service 层错误映射为 HTTP 状态码
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var ve *apperr.ValidationError
	var ue *apperr.UnresolvedRecipientError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.As(err, &ue):
		fields := make([]apperr.FieldError, len(ue.Emails))
		for i, e := range ue.Emails {
			fields[i] = apperr.FieldError{Field: "recipients", Message: "Recipient not found: " + e}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "one or more recipients not found", "fields": fields})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
