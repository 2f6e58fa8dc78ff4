package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/tourbook/booking-backend/internal/models"
)

// classifyPostgresError marks infrastructure failures as transient so the
// admission boundary can retry them; everything else is wrapped as-is.
func classifyPostgresError(op string, err error) error {
	if err == nil {
		return nil
	}

	// Caller gave up; retrying would not help
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return models.Transient(op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"40", // transaction rollback (serialization failure, deadlock)
			"53", // insufficient resources
			"57": // operator intervention
			return models.Transient(op, err)
		}
		if pqErr.Code == "55P03" { // lock_not_available
			return models.Transient(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.Transient(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
