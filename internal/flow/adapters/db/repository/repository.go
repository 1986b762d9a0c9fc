package repository

import (
	"context"
	"errors"

	"github.com/flowvault-go/internal/domain/flow"
	"github.com/flowvault-go/internal/flow/ports"
	"github.com/flowvault-go/pkg/database"
	"gorm.io/gorm"
)

// Models lists every table owned by the flow repository.
var Models = []interface{}{
	&flow.FlowDefinition{},
	&flow.FlowNode{},
	&flow.FlowEdge{},
	&flow.VersionHistory{},
	&flow.ExecutionLog{},
	&flow.NodeExecutionLog{},
	&flow.ArchivedVersionHistory{},
	&flow.ArchivedExecutionLog{},
	&flow.ArchivedNodeExecutionLog{},
	&flow.BackupVersionHistory{},
	&flow.BackupExecutionLog{},
	&flow.ArchiveOperationLog{},
}

// Migrate creates or updates the flow tables.
func Migrate(db *database.DB) error {
	return db.Migrate(Models...)
}

// FlowRepository is the gorm implementation of the flow, execution log and
// archive ports.
type FlowRepository struct {
	db *database.DB
}

var (
	_ ports.FlowRepository         = (*FlowRepository)(nil)
	_ ports.ExecutionLogRepository = (*FlowRepository)(nil)
	_ ports.ArchiveRepository      = (*FlowRepository)(nil)
)

func NewFlowRepository(db *database.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func (r *FlowRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return flow.NewStorageError("ping", err)
	}
	return nil
}

func (r *FlowRepository) WithinTransaction(ctx context.Context, fn func(repo ports.FlowRepository) error) error {
	return r.transaction(ctx, func(tx *FlowRepository) error {
		return fn(tx)
	})
}

func (r *FlowRepository) transaction(ctx context.Context, fn func(tx *FlowRepository) error) error {
	err := r.db.Transaction(ctx, func(tx *database.DB) error {
		return fn(&FlowRepository{db: tx})
	})
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return flow.NewStorageError("transaction", err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		flow.ErrValidation, flow.ErrNotFound, flow.ErrNotPublishable,
		flow.ErrIllegalState, flow.ErrStorage, flow.ErrSerialization,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return flow.NewStorageError(op, err)
}

func notFoundOr(op, resource, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return flow.NewNotFoundError(resource, id)
	}
	return storageErr(op, err)
}
