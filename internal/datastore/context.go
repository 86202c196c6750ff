package datastore

// transactionContext is the mutable transaction state shared by a store and
// all of its tables. It is owned by exactly one store.
type transactionContext struct {
	inTransaction bool
	transactionID string
	version       uint64
	storeID       uint32
	change        Change
}

func newTransactionContext(storeID uint32) *transactionContext {
	return &transactionContext{storeID: storeID, change: Change{}}
}

// fieldChange returns the change already recorded for a field in the open transaction.
func (c *transactionContext) fieldChange(schemaID string, id RecordID, name string) (FieldChange, bool) {
	change, ok := c.change[schemaID][id][name]
	return change, ok
}

func (c *transactionContext) recordFieldChange(schemaID string, id RecordID, name string, change FieldChange) {
	tableChange, ok := c.change[schemaID]
	if !ok {
		tableChange = TableChange{}
		c.change[schemaID] = tableChange
	}
	recordChange, ok := tableChange[id]
	if !ok {
		recordChange = RecordChange{}
		tableChange[id] = recordChange
	}
	recordChange[name] = change
}
