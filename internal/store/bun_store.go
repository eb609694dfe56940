package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowmesh/engine/internal/domain"
)

// workflowModel is the bun row shape for the workflows table. Nodes and
// Connections are stored as JSONB so the graph's shape never needs a schema
// migration when node types gain fields.
type workflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID          string              `bun:"id,pk"`
	Name        string              `bun:"name"`
	Nodes       []domain.Node       `bun:"nodes,type:jsonb"`
	Connections []domain.Connection `bun:"connections,type:jsonb"`
	Status      domain.Status       `bun:"status"`
	Revision    int64               `bun:"revision"`
	CreatedAt   time.Time           `bun:"created_at"`
	UpdatedAt   time.Time           `bun:"updated_at"`
}

func (m *workflowModel) toDomain() *domain.Workflow {
	return &domain.Workflow{
		ID:          m.ID,
		Name:        m.Name,
		Nodes:       m.Nodes,
		Connections: m.Connections,
		Status:      m.Status,
		Revision:    m.Revision,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromDomain(wf *domain.Workflow) *workflowModel {
	return &workflowModel{
		ID:          wf.ID,
		Name:        wf.Name,
		Nodes:       wf.Nodes,
		Connections: wf.Connections,
		Status:      wf.Status,
		Revision:    wf.Revision,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// BunStore is the Postgres-backed Workflow Store.
type BunStore struct {
	db     *bun.DB
	syncer TimerSyncer
}

// NewBunStore opens a connection pool against dsn. Callers should call
// InitSchema once at startup.
func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &BunStore{db: bun.NewDB(sqldb, pgdialect.New())}
}

// InitSchema creates the workflows table if it does not already exist.
func (s *BunStore) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*workflowModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// SetTimerSyncer wires the Timer Manager in after construction.
func (s *BunStore) SetTimerSyncer(syncer TimerSyncer) { s.syncer = syncer }

func (s *BunStore) List(ctx context.Context) ([]Summary, error) {
	var models []workflowModel
	if err := s.db.NewSelect().Model(&models).Column("id", "name", "status", "updated_at").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]Summary, len(models))
	for i, m := range models {
		out[i] = Summary{ID: m.ID, Name: m.Name, Status: m.Status, UpdatedAt: m.UpdatedAt}
	}
	return out, nil
}

func (s *BunStore) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	model := new(workflowModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

// Upsert writes wf inside a transaction, preserving created_at and bumping
// revision on an existing row.
func (s *BunStore) Upsert(ctx context.Context, wf *domain.Workflow) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(workflowModel)
		err := tx.NewSelect().Model(existing).Where("id = ?", wf.ID).Scan(ctx)
		now := time.Now()
		switch err {
		case nil:
			wf.CreatedAt = existing.CreatedAt
			wf.Revision = existing.Revision + 1
			wf.Status = existing.Status
		case sql.ErrNoRows:
			wf.CreatedAt = now
			wf.Revision = 1
			if wf.Status == "" {
				wf.Status = domain.StatusDraft
			}
		default:
			return err
		}
		wf.UpdatedAt = now

		model := fromDomain(wf)
		_, err = tx.NewInsert().Model(model).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("nodes = EXCLUDED.nodes").
			Set("connections = EXCLUDED.connections").
			Set("revision = EXCLUDED.revision").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
}

func (s *BunStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().Model((*workflowModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// SetStatus flips a workflow's publication status and syncs its timer nodes
// to match.
func (s *BunStore) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Workflow, error) {
	model := new(workflowModel)
	if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.WorkflowNotFoundError{ID: id}
		}
		return nil, err
	}

	now := time.Now()
	if _, err := s.db.NewUpdate().Model((*workflowModel)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	model.Status = status
	model.UpdatedAt = now
	result := model.toDomain()
	syncTimers(ctx, s.syncer, result, status == domain.StatusPublished)
	return result, nil
}

// ListWorkflows satisfies webhookreg.WorkflowLister.
func (s *BunStore) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	var models []workflowModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Workflow, len(models))
	for i, m := range models {
		out[i] = *m.toDomain()
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *BunStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the underlying connection pool.
func (s *BunStore) Close() error { return s.db.Close() }
