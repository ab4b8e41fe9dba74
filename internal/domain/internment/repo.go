package internment

import (
	"context"
)

// UpdateFunc receives the locked current snapshot and returns the snapshot
// to persist along with the history entries to append.
type UpdateFunc func(current *Patient) (*Patient, []HistoryEntry, error)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
	ListActive(ctx context.Context) ([]*Patient, error)
	ListByCPF(ctx context.Context, cpf string) ([]*Patient, error)

	// Update serialises read-modify-write of one patient: fn runs while the
	// row is locked and its result is written in the same transaction.
	Update(ctx context.Context, id int64, fn UpdateFunc) (*Patient, error)

	// History
	AppendHistory(ctx context.Context, patientID int64, entries []HistoryEntry) error
	GetHistory(ctx context.Context, patientID int64) ([]HistoryEntry, error)
}
