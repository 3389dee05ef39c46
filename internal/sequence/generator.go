package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/procurex/requisition-engine/internal"
	"gorm.io/gorm"
)

// Document kinds. The kind prefixes the generated number.
const (
	KindRequisition   = "REQ"
	KindPurchaseOrder = "PO"
)

// RepositoryAPI allocates the next counter value for (kind, year) while
// holding a row lock, inside the caller's transaction.
type RepositoryAPI interface {
	NextValue(tx *gorm.DB, kind string, year int) (int64, error)
}

// Generator produces collision-free human-readable document numbers of the
// form PREFIX-YY-NNNNN, monotonically increasing per kind per year. Numbering
// is global across tenants.
type Generator struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewGenerator(repo RepositoryAPI, logger *slog.Logger) *Generator {
	return &Generator{
		repo:   repo,
		logger: logger,
	}
}

// NextNumber allocates the next number for kind within the caller's
// transaction. The counter row stays locked until the transaction ends, so
// two concurrent submitters cannot compute the same value. Lock waits are
// bounded by ctx; on timeout the caller gets a retryable error and the
// enclosing transaction rolls back without allocating.
func (g *Generator) NextNumber(ctx context.Context, tx *gorm.DB, kind string) (string, error) {
	if kind != KindRequisition && kind != KindPurchaseOrder {
		return "", fmt.Errorf("unknown document kind %q", kind)
	}

	now := time.Now()
	value, err := g.repo.NextValue(tx.WithContext(ctx), kind, now.Year())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.logger.Warn("counter lock wait timed out", "kind", kind, "year", now.Year())
			return "", internal.ErrSequenceTimeout
		}
		return "", err
	}

	number := Format(kind, now.Year(), value)
	g.logger.Debug("allocated document number", "kind", kind, "number", number)
	return number, nil
}

// Format renders a document number: PREFIX-YY-NNNNN, zero-padded to 5 digits.
func Format(kind string, year int, value int64) string {
	return fmt.Sprintf("%s-%02d-%05d", kind, year%100, value)
}
