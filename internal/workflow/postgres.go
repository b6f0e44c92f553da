package workflow

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Requests(context.Context) RequestStore {
	return &requestStore{db: s.db}
}

func (s *PGStore) Workflows(context.Context) WorkflowStore {
	return &workflowStore{db: s.db}
}

// Request store ------------------------------------------------------------

type requestStore struct{ db *sql.DB }

const requestColumns = `id, type, items, status, employee_id, created_by_role, approver_id,
	created_at, updated_at`

const insertWorkflowSQL = `insert into workflows(id, type, details, status, employee_id, request_id, created_at)
	 values($1,$2,$3,$4,$5,$6,$7)`

func (s *requestStore) Create(ctx context.Context, req *Request, task *Workflow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into requests(`+requestColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.Type, req.Items, req.Status, req.EmployeeID, req.CreatedByRole, req.ApproverID,
		req.CreatedAt, req.UpdatedAt,
	); err != nil {
		return err
	}
	if task != nil {
		if _, err := tx.ExecContext(ctx, insertWorkflowSQL,
			task.ID, task.Type, task.Details, task.Status, task.EmployeeID, task.RequestID, task.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.Type, &r.Items, &r.Status, &r.EmployeeID, &r.CreatedByRole, &r.ApproverID,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *requestStore) Find(ctx context.Context, id string) (*Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx,
		`select `+requestColumns+` from requests where id=$1`, id))
}

// UpdateWithLog is the one-transaction write for the update path: the request
// row and its audit entry land together or not at all. An audit insert
// failure after the row update rolls the whole operation back.
func (s *requestStore) UpdateWithLog(ctx context.Context, req *Request, entry *Workflow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update requests
		 set type=$2, items=$3, status=$4, approver_id=$5, updated_at=$6
		 where id=$1`,
		req.ID, req.Type, req.Items, req.Status, req.ApproverID, req.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRequestNotFound
	}
	if _, err := tx.ExecContext(ctx, insertWorkflowSQL,
		entry.ID, entry.Type, entry.Details, entry.Status, entry.EmployeeID, entry.RequestID, entry.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

const requestDetailQuery = `
	select r.id, r.type, r.items, r.status, r.employee_id, r.created_by_role, r.approver_id,
		r.created_at, r.updated_at,
		e.code, a.email, d.name, p.name
	from requests r
	join employees e on e.id = r.employee_id
	left join accounts a on a.id = e.account_id
	left join departments d on d.id = e.department_id
	left join positions p on p.id = e.position_id`

func scanRequestDetail(row interface{ Scan(...any) error }) (*RequestDetail, error) {
	var d RequestDetail
	err := row.Scan(
		&d.ID, &d.Type, &d.Items, &d.Status, &d.EmployeeID, &d.CreatedByRole, &d.ApproverID,
		&d.CreatedAt, &d.UpdatedAt,
		&d.EmployeeCode, &d.AccountEmail, &d.DepartmentName, &d.PositionName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *requestStore) Detail(ctx context.Context, id string) (*RequestDetail, error) {
	return scanRequestDetail(s.db.QueryRowContext(ctx,
		requestDetailQuery+` where r.id=$1`, id))
}

func (s *requestStore) List(ctx context.Context) ([]*RequestDetail, error) {
	rows, err := s.db.QueryContext(ctx, requestDetailQuery+` order by r.created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*RequestDetail
	for rows.Next() {
		d, err := scanRequestDetail(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// Workflow store -----------------------------------------------------------

type workflowStore struct{ db *sql.DB }

const workflowColumns = `id, type, details, status, employee_id, request_id, created_at`

func (s *workflowStore) Append(ctx context.Context, entry *Workflow) error {
	_, err := s.db.ExecContext(ctx, insertWorkflowSQL,
		entry.ID, entry.Type, entry.Details, entry.Status, entry.EmployeeID, entry.RequestID, entry.CreatedAt,
	)
	return err
}

func scanWorkflow(row interface{ Scan(...any) error }) (*Workflow, error) {
	var w Workflow
	err := row.Scan(&w.ID, &w.Type, &w.Details, &w.Status, &w.EmployeeID, &w.RequestID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *workflowStore) Find(ctx context.Context, id string) (*Workflow, error) {
	return scanWorkflow(s.db.QueryRowContext(ctx,
		`select `+workflowColumns+` from workflows where id=$1`, id))
}

func (s *workflowStore) ListByEmployee(ctx context.Context, employeeID string) ([]*Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+workflowColumns+` from workflows where employee_id=$1 order by created_at asc`,
		employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func (s *workflowStore) ListPending(ctx context.Context) ([]*Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+workflowColumns+` from workflows where status='Pending' order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func collectWorkflows(rows *sql.Rows) ([]*Workflow, error) {
	var res []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (s *workflowStore) SetStatus(ctx context.Context, id string, status Status) (*Workflow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	w, err := scanWorkflow(tx.QueryRowContext(ctx,
		`update workflows set status=$2 where id=$1
		 returning `+workflowColumns, id, status))
	if err != nil {
		return nil, err
	}
	if w.RequestID != nil {
		if _, err := tx.ExecContext(ctx,
			`update requests set status=$2, updated_at=now() where id=$1`,
			*w.RequestID, RequestStatus(status),
		); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return w, nil
}
