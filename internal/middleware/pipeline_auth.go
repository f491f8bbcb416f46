package middleware

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "beanmind/internal/errors"
)

// PipelineCallerKey is the context key holding which configured key a
// pipeline request presented ("key-1", "key-2", ...).
const PipelineCallerKey = "pipelineCaller"

// PipelineAuthMiddleware guards machine-to-machine routes such as the
// scheduler trigger. apiKeys is a comma-separated list so a key can be
// rotated without downtime; an empty list disables the routes.
func PipelineAuthMiddleware(apiKeys string) gin.HandlerFunc {
	keys := splitKeys(apiKeys)

	return func(c *gin.Context) {
		if len(keys) == 0 {
			abortWithAppError(c, apperrors.ErrPipelineNotConfigured)
			return
		}

		presented := []byte(c.GetHeader("X-API-Key"))
		matched := -1
		// Every key is compared so timing does not reveal which one matched.
		for i, k := range keys {
			if subtle.ConstantTimeCompare(presented, k) == 1 {
				matched = i
			}
		}
		if matched < 0 {
			abortWithAppError(c, apperrors.ErrInvalidAPIKey)
			return
		}

		c.Set(PipelineCallerKey, "key-"+strconv.Itoa(matched+1))
		c.Next()
	}
}

func splitKeys(s string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}
