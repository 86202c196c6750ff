package datastore

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/scheduler"
	"go.uber.org/zap"
)

const (
	opAutoClose      = "datastore.auto_close"
	opProcessQueue   = "datastore.process_undo_queue"
	opApplyUndoRedo  = "datastore.apply_undo_redo"
	fieldTransaction = "transaction_id"
	fieldSchemaID    = "schema_id"
	fieldChangeType  = "change_type"
)

var noOpLogger = zap.NewNop()

// Scheduler defers work to the next scheduling boundary.
type Scheduler interface {
	Post(task func())
	PostConflatable(key any, task func())
	Flush() int
}

// Datastore is the behavior shared by Store and HistoryStore.
type Datastore interface {
	ID() uint32
	InTransaction() bool
	TransactionID() string
	Version() uint64
	Tables() []*Table
	Table(schema Schema) (*Table, error)
	TableByID(schemaID string) (*Table, error)
	BeginTransaction() (string, error)
	EndTransaction() error
	Undo(transactionID string) error
	Redo(transactionID string) error
	Changed() *ChangeSignal
	Flush() int
	String() string
	Dispose()
	IsDisposed() bool
}

// StoreConfig describes the inputs of NewStore and NewHistoryStore.
type StoreConfig struct {
	Schemas []Schema
	StoreID uint32
	// RestoreState is a snapshot previously produced by String.
	RestoreState string
	// MaxHistory bounds the undo history of a HistoryStore; zero means unbounded.
	MaxHistory int
	Scheduler  Scheduler
	IDProvider IDProvider
	Logger     *zap.Logger
	// AutoCloseHook is called after a transaction left open across a
	// scheduling boundary has been force-closed.
	AutoCloseHook func(transactionID string)
}

type autoCloseKey struct {
	core *storeCore
}

// storeCore implements the transaction lifecycle common to both store variants.
type storeCore struct {
	context       *transactionContext
	tables        map[string]*Table
	order         []string
	changed       *ChangeSignal
	scheduler     Scheduler
	idProvider    IDProvider
	logger        *zap.Logger
	autoCloseHook func(string)
	onCommit      func(ChangeEvent)
	disposed      bool
}

func newStoreCore(cfg StoreConfig) (*storeCore, error) {
	if err := ValidateSchemas(cfg.Schemas); err != nil {
		return nil, err
	}

	var restored map[string][]*Record
	if cfg.RestoreState != "" {
		var err error
		restored, err = decodeSnapshot(cfg.RestoreState, cfg.Schemas)
		if err != nil {
			return nil, err
		}
	}

	loop := cfg.Scheduler
	if loop == nil {
		loop = scheduler.NewLoop()
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	context := newTransactionContext(cfg.StoreID)
	core := &storeCore{
		context:       context,
		tables:        make(map[string]*Table, len(cfg.Schemas)),
		order:         make([]string, 0, len(cfg.Schemas)),
		changed:       newChangeSignal(),
		scheduler:     loop,
		idProvider:    idProvider,
		logger:        logger,
		autoCloseHook: cfg.AutoCloseHook,
	}
	for _, schema := range cfg.Schemas {
		core.tables[schema.ID] = newTable(schema, context, restored[schema.ID])
		core.order = append(core.order, schema.ID)
	}
	return core, nil
}

// ID returns the store id carried by change notifications.
func (c *storeCore) ID() uint32 {
	return c.context.storeID
}

// InTransaction reports whether a transaction is open.
func (c *storeCore) InTransaction() bool {
	return c.context.inTransaction
}

// TransactionID returns the id of the open or most recent transaction.
func (c *storeCore) TransactionID() string {
	return c.context.transactionID
}

// Version increases with every transaction; it is not guaranteed to be contiguous.
func (c *storeCore) Version() uint64 {
	return c.context.version
}

// Changed returns the change notification signal.
func (c *storeCore) Changed() *ChangeSignal {
	return c.changed
}

// Tables returns the tables in schema declaration order.
func (c *storeCore) Tables() []*Table {
	tables := make([]*Table, 0, len(c.order))
	for _, schemaID := range c.order {
		tables = append(tables, c.tables[schemaID])
	}
	return tables
}

// Table returns the table of the given schema.
func (c *storeCore) Table(schema Schema) (*Table, error) {
	return c.TableByID(schema.ID)
}

// TableByID returns the table of the schema with the given id.
func (c *storeCore) TableByID(schemaID string) (*Table, error) {
	table, ok := c.tables[schemaID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schemaID)
	}
	return table, nil
}

// BeginTransaction opens a transaction and returns its id. A transaction
// still open at the next scheduling boundary is closed automatically.
func (c *storeCore) BeginTransaction() (string, error) {
	if c.context.inTransaction {
		return "", fmt.Errorf("%w: %s", ErrAlreadyInTransaction, c.context.transactionID)
	}
	transactionID, err := c.idProvider.NewID()
	if err != nil {
		return "", fmt.Errorf("datastore: transaction id generation failed: %w", err)
	}
	if err := c.initTransaction(transactionID, c.context.version+1); err != nil {
		return "", err
	}
	c.scheduler.PostConflatable(autoCloseKey{core: c}, c.autoClose)
	return transactionID, nil
}

// EndTransaction closes the open transaction and emits a change
// notification when anything changed.
func (c *storeCore) EndTransaction() error {
	if err := c.finalizeTransaction(); err != nil {
		return err
	}
	if c.context.change.IsEmpty() {
		return nil
	}
	event := ChangeEvent{
		StoreID:       c.context.storeID,
		TransactionID: c.context.transactionID,
		Type:          ChangeTransaction,
		Change:        c.context.change,
	}
	if c.onCommit != nil {
		c.onCommit(event)
	}
	c.changed.emit(event)
	return nil
}

// Flush runs one cycle of the store scheduler.
func (c *storeCore) Flush() int {
	return c.scheduler.Flush()
}

// String serializes every table as a mapping of schema id to records.
func (c *storeCore) String() string {
	encoded, err := encodeSnapshot(c.Tables())
	if err != nil {
		c.logger.Error("snapshot encoding failed", zap.Error(err))
		return "{}"
	}
	return encoded
}

// Dispose disconnects every change handler. It is safe to call more than once.
func (c *storeCore) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.changed.disconnectAll()
}

// IsDisposed reports whether Dispose has been called.
func (c *storeCore) IsDisposed() bool {
	return c.disposed
}

func (c *storeCore) autoClose() {
	if !c.context.inTransaction {
		return
	}
	transactionID := c.context.transactionID
	c.logger.Warn("automatically ending transaction (did you forget to end it?)",
		zap.String("operation", opAutoClose),
		zap.String(fieldTransaction, transactionID))
	if err := c.EndTransaction(); err != nil {
		c.logError(opAutoClose, "end_transaction_failed", err, zap.String(fieldTransaction, transactionID))
		return
	}
	if c.autoCloseHook != nil {
		c.autoCloseHook(transactionID)
	}
}

func (c *storeCore) initTransaction(transactionID string, version uint64) error {
	if c.context.inTransaction {
		return fmt.Errorf("%w: %s", ErrAlreadyInTransaction, c.context.transactionID)
	}
	c.context.inTransaction = true
	c.context.change = Change{}
	c.context.transactionID = transactionID
	c.context.version = version
	return nil
}

func (c *storeCore) finalizeTransaction() error {
	if !c.context.inTransaction {
		return ErrNoTransaction
	}
	c.context.inTransaction = false
	return nil
}

func (c *storeCore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("datastore error", attrs...)
}

// Store is a record store without history tracking.
type Store struct {
	*storeCore
}

var _ Datastore = (*Store)(nil)

// NewStore validates the schemas and constructs a store with one table per schema.
func NewStore(cfg StoreConfig) (*Store, error) {
	core, err := newStoreCore(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{storeCore: core}, nil
}

// Undo always fails; use HistoryStore for undo support.
func (s *Store) Undo(string) error {
	return ErrUndoUnsupported
}

// Redo always fails; use HistoryStore for redo support.
func (s *Store) Redo(string) error {
	return ErrUndoUnsupported
}
