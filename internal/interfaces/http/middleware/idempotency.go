package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader names the client-chosen key of a mutation
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader is set on responses served from the store
	IdempotentReplayHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
)

// IdempotencyConfig configures the Idempotency middleware
type IdempotencyConfig struct {
	Store shared.IdempotencyStore
	// TTL is how long a completed response is replayed
	TTL time.Duration
	// LockTTL bounds how long an in-flight request holds its key
	LockTTL time.Duration
	Logger  *zap.Logger
}

// Idempotency replays the stored response of a POST that carries an
// Idempotency-Key already seen with the same body. Only 2xx responses are
// stored; a failed attempt frees the key so the client can retry it.
// The store failing open keeps the ledger writable when Redis is down.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.Store == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		clientKey := c.GetHeader(IdempotencyKeyHeader)
		if clientKey == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(clientKey) > maxIdempotencyKeyLength {
			abortIdempotency(c, http.StatusBadRequest, dto.ErrCodeInvalidRequest, "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortIdempotency(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body could not be read")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		key := c.Request.Method + " " + c.Request.URL.Path + " " + clientKey
		hash := requestHash(body)
		log := cfg.Logger.With(zap.String("idempotency_key", clientKey), zap.String("path", c.Request.URL.Path))

		if stored, err := cfg.Store.Load(ctx, key); err != nil {
			log.Warn("Idempotency store unavailable, processing without replay protection", zap.Error(err))
			c.Next()
			return
		} else if stored != nil {
			replay(c, stored, hash)
			return
		}

		acquired, err := cfg.Store.Acquire(ctx, key, cfg.LockTTL)
		if err != nil {
			log.Warn("Idempotency store unavailable, processing without replay protection", zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			// Completed between Load and Acquire, or still running
			if stored, err := cfg.Store.Load(ctx, key); err == nil && stored != nil {
				replay(c, stored, hash)
				return
			}
			abortIdempotency(c, http.StatusConflict, dto.ErrCodeIdempotencyConflict,
				"A request with this Idempotency-Key is still being processed")
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			resp := shared.StoredResponse{
				StatusCode:  status,
				ContentType: recorder.Header().Get("Content-Type"),
				Body:        recorder.body.Bytes(),
				RequestHash: hash,
			}
			if err := cfg.Store.Complete(ctx, key, resp, cfg.TTL); err != nil {
				log.Warn("Failed to store idempotent response", zap.Error(err))
			}
			return
		}
		if err := cfg.Store.Abandon(ctx, key); err != nil {
			log.Warn("Failed to release idempotency key", zap.Error(err))
		}
	}
}

func replay(c *gin.Context, stored *shared.StoredResponse, hash string) {
	if stored.RequestHash != hash {
		abortIdempotency(c, http.StatusConflict, dto.ErrCodeIdempotencyConflict,
			"Idempotency-Key was already used with a different request")
		return
	}
	c.Header(IdempotentReplayHeader, "true")
	contentType := stored.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(stored.StatusCode, contentType, stored.Body)
	c.Abort()
}

func abortIdempotency(c *gin.Context, status int, code, message string) {
	SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message, c.GetString("request_id"), nil))
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// responseRecorder copies the response body while it is written
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
