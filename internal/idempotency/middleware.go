package idempotency

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"coffeenet/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	// Header is the request header carrying the client's key.
	Header = "Idempotency-Key"
	// ReplayedHeader marks a response served from the store.
	ReplayedHeader = "Idempotent-Replayed"
)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware runs a keyed request once per user and key. Only successful
// responses are kept; failures release the key. Requests without the header
// pass through. It must run after auth.RequireAuth.
func Middleware(store Store, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(Header)
		if raw == "" {
			c.Next()
			return
		}
		identity, _ := auth.IdentityFrom(c)
		key := fmt.Sprintf("%d:%s", identity.UserID, raw)
		ctx := c.Request.Context()

		rec, claimed, err := store.Begin(ctx, key)
		if err != nil {
			log.Warn("idempotency store unavailable", "error", err)
			c.Next()
			return
		}
		if !claimed {
			if !rec.Done {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error": "a request with this idempotency key is still running",
					"code":  "request_in_progress",
				})
				return
			}
			log.Info("idempotent replay", "user_id", identity.UserID, "key", raw)
			c.Header(ReplayedHeader, "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			c.Abort()
			return
		}

		w := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= 200 && status < 300 {
			err = store.Complete(ctx, key, Record{Status: status, Body: w.body.Bytes()})
		} else {
			err = store.Release(ctx, key)
		}
		if err != nil {
			log.Warn("failed to settle idempotency key", "error", err, "key", raw)
		}
	}
}
