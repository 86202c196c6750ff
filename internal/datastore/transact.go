package datastore

import "errors"

// Transact runs fn inside a transaction. When the store already has an open
// transaction fn joins it and the open transaction id is returned; otherwise
// a new transaction is begun and always ended, even when fn fails.
func Transact(store Datastore, fn func() error) (string, error) {
	if store.InTransaction() {
		return store.TransactionID(), fn()
	}
	transactionID, err := store.BeginTransaction()
	if err != nil {
		return "", err
	}
	fnErr := fn()
	if endErr := store.EndTransaction(); endErr != nil {
		return transactionID, errors.Join(fnErr, endErr)
	}
	return transactionID, fnErr
}
