package server

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/auth"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	subjectContextKey = "datastore_subject"
	accessTokenParam  = "access_token"
	schemaParam       = "schema"
	versionHeader     = "X-Datastore-Version"
)

var (
	errMissingHost          = errors.New("host dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator validates bearer tokens and returns their subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

type historyTargets interface {
	UndoTarget() (string, bool)
	RedoTarget() (string, bool)
}

// Dependencies bundles the collaborators of the HTTP handler. Realtime is
// connected to the host's change signal by the caller; when nil a dispatcher
// is created and connected.
type Dependencies struct {
	Host           *Host
	TokenManager   TokenValidator
	Realtime       *RealtimeDispatcher
	Metrics        http.Handler
	AllowedOrigins []string
	Heartbeat      time.Duration
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the hosted store.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Host == nil {
		return nil, errMissingHost
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
		deps.Host.Changed().Connect(realtime.Publish)
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		host:      deps.Host,
		tokens:    deps.TokenManager,
		realtime:  realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/snapshot", handler.handleSnapshot)
	protected.GET("/tables/:schema/records", handler.handleListRecords)
	protected.GET("/tables/:schema/records/:id", handler.handleGetRecord)
	protected.POST("/transactions", handler.handleTransaction)
	protected.POST("/transactions/:id/undo", handler.handleUndo)
	protected.POST("/transactions/:id/redo", handler.handleRedo)
	protected.GET("/changes", handler.handleChangeStream)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposeHeaders: []string{versionHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type httpHandler struct {
	host      *Host
	tokens    TokenValidator
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

type transactionResponsePayload struct {
	TransactionID string `json:"transactionId"`
	Version       uint64 `json:"version"`
	UndoTarget    string `json:"undoTarget,omitempty"`
	RedoTarget    string `json:"redoTarget,omitempty"`
}

type recordsResponsePayload struct {
	Schema  string              `json:"schema"`
	Records []*datastore.Record `json:"records"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSnapshot(c *gin.Context) {
	var (
		snapshot string
		version  uint64
	)
	_ = h.host.Do(func(store datastore.Datastore) error {
		snapshot = store.String()
		version = store.Version()
		return nil
	})
	c.Header(versionHeader, strconv.FormatUint(version, 10))
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(snapshot))
}

func (h *httpHandler) handleListRecords(c *gin.Context) {
	schemaID := c.Param(schemaParam)
	var response recordsResponsePayload
	err := h.host.Do(func(store datastore.Datastore) error {
		table, err := store.TableByID(schemaID)
		if err != nil {
			return err
		}
		response = recordsResponsePayload{Schema: schemaID, Records: table.Records()}
		return nil
	})
	if err != nil {
		h.writeStoreError(c, "list_records", err)
		return
	}
	h.writeJSON(c, http.StatusOK, response)
}

func (h *httpHandler) handleGetRecord(c *gin.Context) {
	schemaID := c.Param(schemaParam)
	var record *datastore.Record
	err := h.host.Do(func(store datastore.Datastore) error {
		table, err := store.TableByID(schemaID)
		if err != nil {
			return err
		}
		id, err := datastore.NewRecordID(c.Param("id"))
		if err != nil {
			return err
		}
		found, ok := table.Get(id)
		if !ok {
			return errRecordNotFound
		}
		record = found
		return nil
	})
	if err != nil {
		h.writeStoreError(c, "get_record", err)
		return
	}
	h.writeJSON(c, http.StatusOK, record)
}

func (h *httpHandler) handleTransaction(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var response transactionResponsePayload
	err = h.host.Do(func(store datastore.Datastore) error {
		updates, err := datastore.DecodeChangeRequest(body, func(schemaID string) (datastore.Schema, error) {
			table, err := store.TableByID(schemaID)
			if err != nil {
				return datastore.Schema{}, err
			}
			return table.Schema(), nil
		})
		if err != nil {
			return err
		}
		transactionID, err := datastore.Transact(store, func() error {
			for _, table := range store.Tables() {
				update, ok := updates[table.Schema().ID]
				if !ok {
					continue
				}
				if err := table.Update(update); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		response = h.transactionResponse(store, transactionID)
		return nil
	})
	if err != nil {
		h.writeStoreError(c, "apply_transaction", err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleUndo(c *gin.Context) {
	h.handleHistory(c, "undo", func(store datastore.Datastore, transactionID string) error {
		return store.Undo(transactionID)
	})
}

func (h *httpHandler) handleRedo(c *gin.Context) {
	h.handleHistory(c, "redo", func(store datastore.Datastore, transactionID string) error {
		return store.Redo(transactionID)
	})
}

func (h *httpHandler) handleHistory(c *gin.Context, operation string, apply func(datastore.Datastore, string) error) {
	transactionID := strings.TrimSpace(c.Param("id"))
	var response transactionResponsePayload
	err := h.host.Do(func(store datastore.Datastore) error {
		if err := apply(store, transactionID); err != nil {
			return err
		}
		response = h.transactionResponse(store, transactionID)
		return nil
	})
	if err != nil {
		h.writeStoreError(c, operation, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) transactionResponse(store datastore.Datastore, transactionID string) transactionResponsePayload {
	response := transactionResponsePayload{TransactionID: transactionID, Version: store.Version()}
	if targets, ok := store.(historyTargets); ok {
		response.UndoTarget, _ = targets.UndoTarget()
		response.RedoTarget, _ = targets.RedoTarget()
	}
	return response
}

func (h *httpHandler) handleChangeStream(c *gin.Context) {
	schemaID := strings.TrimSpace(c.Query(schemaParam))
	if schemaID != allSchemas {
		err := h.host.Do(func(store datastore.Datastore) error {
			_, err := store.TableByID(schemaID)
			return err
		})
		if err != nil {
			h.writeStoreError(c, "open_stream", err)
			return
		}
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, schemaID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": time.Now().UTC().Unix()})
			return true
		case message := <-stream:
			payload, err := json.Marshal(message.Event)
			if err != nil {
				h.logError("stream_change", "encode_failed", err, zap.String("transaction_id", message.Event.TransactionID))
				return true
			}
			c.SSEvent(message.EventType, string(payload))
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case header == "":
		token = strings.TrimSpace(c.Query(accessTokenParam))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		level := zapcore.WarnLevel
		if isExpiredToken(err) {
			level = zapcore.InfoLevel
		}
		h.logger.Log(level, "token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

func (h *httpHandler) writeJSON(c *gin.Context, status int, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		h.logError("encode_response", "encode_failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
		return
	}
	c.Data(status, "application/json; charset=utf-8", encoded)
}

func (h *httpHandler) writeStoreError(c *gin.Context, operation string, err error) {
	status, code := classifyStoreError(err)
	if status >= http.StatusInternalServerError {
		h.logError(operation, code, err)
	} else {
		h.logger.Warn("request rejected",
			zap.String("operation", operation),
			zap.String("reason", code),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func (h *httpHandler) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	h.logger.Error("request failed", attrs...)
}

var errRecordNotFound = errors.New("record not found")

func classifyStoreError(err error) (int, string) {
	switch {
	case errors.Is(err, datastore.ErrUnknownSchema):
		return http.StatusNotFound, "unknown_schema"
	case errors.Is(err, errRecordNotFound):
		return http.StatusNotFound, "record_not_found"
	case errors.Is(err, datastore.ErrInvalidRecordID):
		return http.StatusBadRequest, "invalid_record_id"
	case errors.Is(err, datastore.ErrUnknownField):
		return http.StatusBadRequest, "unknown_field"
	case errors.Is(err, datastore.ErrInvalidUpdate), errors.Is(err, datastore.ErrInvalidValue):
		return http.StatusBadRequest, "invalid_update"
	case errors.Is(err, datastore.ErrUndoUnsupported):
		return http.StatusConflict, "undo_unsupported"
	case errors.Is(err, datastore.ErrNothingToUndo):
		return http.StatusConflict, "nothing_to_undo"
	case errors.Is(err, datastore.ErrNothingToRedo):
		return http.StatusConflict, "nothing_to_redo"
	case errors.Is(err, datastore.ErrUndoTargetMismatch):
		return http.StatusConflict, "undo_target_mismatch"
	case errors.Is(err, datastore.ErrRedoTargetMismatch):
		return http.StatusConflict, "redo_target_mismatch"
	case errors.Is(err, datastore.ErrAlreadyInTransaction):
		return http.StatusConflict, "transaction_in_progress"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func isExpiredToken(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrExpiredToken)
}
