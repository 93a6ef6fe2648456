package credentials

import (
	"context"
	"fmt"

	"github.com/andrebq/gatekeeper/cassette"
)

const (
	ColumnName = "name"
	ColumnSalt = "salt"
	ColumnHash = "hash"
	ColumnLock = "lock"
)

// Setup declares the columns used by the Manager, it is safe to call it
// every time the service starts.
func Setup(ctx context.Context, tape cassette.Store) error {
	for _, col := range []string{ColumnName, ColumnSalt, ColumnHash, ColumnLock} {
		if err := tape.CreateColumn(ctx, col); err != nil {
			return fmt.Errorf("unable to create column %v, cause %w", col, err)
		}
	}
	return nil
}
