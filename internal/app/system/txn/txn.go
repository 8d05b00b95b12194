// Package txn runs multi-document work inside a Mongo transaction and
// recognizes deployments (standalone servers) that cannot host one.
package txn

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotSupported is returned by Run when the deployment rejects
// transactions. Callers fall back to a non-transactional path.
var ErrNotSupported = errors.New("transactions not supported by deployment")

// Run executes fn inside a transaction on a fresh session. The driver
// retries transient transaction errors. If the server reports that
// transactions are unavailable, Run returns ErrNotSupported and fn's writes
// are not committed.
func Run(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	sess, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return ErrNotSupported
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return ErrNotSupported
	}
	return err
}

// Server codes meaning the deployment cannot host the transaction.
const (
	codeIllegalOperation                   = 20  // standalone server
	codeOperationNotSupportedInTransaction = 263 // e.g. implicit collection creation
)

// IsNotSupported reports whether err means the server cannot run
// multi-document transactions. Only server error codes are trusted; error
// text is never inspected.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotSupported) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeIllegalOperation) ||
			se.HasErrorCode(codeOperationNotSupportedInTransaction)
	}
	return false
}
