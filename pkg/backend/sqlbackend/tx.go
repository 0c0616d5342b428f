package sqlbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapvertica/pkg/backend"
)

// SetAutocommit switches the session between autocommit and manual-commit
// mode. Turning autocommit back on commits the pending transaction.
func (b *Backend) SetAutocommit(ctx context.Context, bh backend.Handle, on bool) error {
	h, err := asHandle(bh)
	if err != nil {
		return err
	}
	if on == h.autocommit {
		return nil
	}

	if on {
		if h.tx != nil {
			if err := h.tx.Commit(); err != nil {
				return h.record(err)
			}
			h.tx = nil
		}
		h.autocommit = true
		b.logger.Debug("autocommit enabled", slog.String("handle", h.id))
		return nil
	}

	if err := b.begin(ctx, h); err != nil {
		return err
	}
	h.autocommit = false
	b.logger.Debug("autocommit disabled", slog.String("handle", h.id))
	return nil
}

// Autocommit reports the session's autocommit flag.
func (b *Backend) Autocommit(bh backend.Handle) bool {
	h, err := asHandle(bh)
	if err != nil {
		return true
	}
	return h.autocommit
}

// Commit commits the pending transaction and, in manual-commit mode,
// opens the next one.
func (b *Backend) Commit(ctx context.Context, bh backend.Handle) error {
	return b.finish(ctx, bh, true)
}

// Rollback discards the pending transaction and, in manual-commit mode,
// opens the next one.
func (b *Backend) Rollback(ctx context.Context, bh backend.Handle) error {
	return b.finish(ctx, bh, false)
}

func (b *Backend) finish(ctx context.Context, bh backend.Handle, commit bool) error {
	h, err := asHandle(bh)
	if err != nil {
		return err
	}
	if h.tx == nil {
		if h.autocommit {
			return nil
		}
		// manual-commit mode whose transaction could not be reopened
		return h.record(fmt.Errorf("no open transaction: %w", sql.ErrTxDone))
	}

	if commit {
		err = h.tx.Commit()
	} else {
		err = h.tx.Rollback()
	}
	h.tx = nil
	if err != nil {
		// the session is left in manual-commit mode; reopen so the next
		// statement still runs transactionally
		if beginErr := b.begin(ctx, h); beginErr != nil {
			return h.record(errors.Join(err, beginErr))
		}
		return h.record(err)
	}

	if !h.autocommit {
		return b.begin(ctx, h)
	}
	return nil
}

// begin opens a transaction on h. The transaction outlives ctx:
// database/sql would otherwise roll it back once ctx is cancelled.
func (b *Backend) begin(ctx context.Context, h *handle) error {
	if h.conn == nil {
		return backend.ErrInvalidHandle
	}
	tx, err := h.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return h.record(err)
	}
	h.tx = tx
	return nil
}
