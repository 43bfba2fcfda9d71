package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logging returns a request logger in the companion's log format. Polling
// endpoints are skipped so a busy host shell doesn't flood the log.
func Logging() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/api/controls"},
		Formatter: func(params gin.LogFormatterParams) string {
			if strings.HasPrefix(params.Path, "/api/ws/") {
				return ""
			}
			return fmt.Sprintf("[http] %s %s %s %d %s\n",
				params.TimeStamp.Format(time.RFC3339),
				params.Method,
				params.Path,
				params.StatusCode,
				params.Latency,
			)
		},
	})
}
