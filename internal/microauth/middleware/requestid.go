// Package middleware provides gin middleware shared by all routes.
package middleware

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const requestIDKey = "microauth/request-id"

// HeaderRequestID is the response header carrying the request identifier.
const HeaderRequestID = "X-Request-Id"

var entropyPool = sync.Pool{
	New: func() any {
		return ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	},
}

// WithRequestID attaches a ULID to every request and echoes it in the
// response headers. Inbound X-Request-Id values are honored so a proxy and
// its upstream share one identifier.
func WithRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			entropy := entropyPool.Get().(*ulid.MonotonicEntropy)
			id = ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
			entropyPool.Put(entropy)
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestID returns the identifier attached by WithRequestID.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
