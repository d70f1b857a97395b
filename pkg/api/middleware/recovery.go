package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/automation-engine/pkg/api/dto"
)

// Recovery 捕获handler panic，转换为统一的500响应
// panic细节只进服务端日志，响应体不携带内部信息
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Printf("❌ 请求处理panic: %s %s: %v\n%s",
				c.Request.Method, c.Request.URL.Path, r, debug.Stack())
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponse(500, "服务器内部错误"))
		}()
		c.Next()
	}
}
