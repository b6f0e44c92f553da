package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"hrdesk.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const employeeColumns = `id, code, account_id, department_id, position_id, hire_date, status,
	created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PGStore) Create(ctx context.Context, e *Employee) error {
	_, err := s.db.ExecContext(ctx,
		`insert into employees(id, code, account_id, department_id, position_id, hire_date, status,
			created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Code, e.AccountID, e.DepartmentID, e.PositionID, e.HireDate, e.Status,
		e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateAccountLink
	}
	return err
}

func (s *PGStore) Update(ctx context.Context, e *Employee) error {
	res, err := s.db.ExecContext(ctx,
		`update employees
		 set account_id=$2, department_id=$3, position_id=$4, hire_date=$5, status=$6, updated_at=$7
		 where id=$1`,
		e.ID, e.AccountID, e.DepartmentID, e.PositionID, e.HireDate, e.Status, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateAccountLink
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEmployee(row interface{ Scan(...any) error }) (*Employee, error) {
	var e Employee
	err := row.Scan(
		&e.ID, &e.Code, &e.AccountID, &e.DepartmentID, &e.PositionID, &e.HireDate, &e.Status,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Employee, error) {
	return scanEmployee(s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where id=$1`, id))
}

func (s *PGStore) FindByCode(ctx context.Context, code string) (*Employee, error) {
	return scanEmployee(s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where code=$1`, code))
}

func (s *PGStore) FindByAccount(ctx context.Context, accountID string) (*Employee, error) {
	return scanEmployee(s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where account_id=$1`, accountID))
}

const employeeDetailQuery = `
	select e.id, e.code, e.account_id, e.department_id, e.position_id, e.hire_date, e.status,
		e.created_at, e.updated_at,
		a.email, a.status, d.name, p.name
	from employees e
	left join accounts a on a.id = e.account_id
	left join departments d on d.id = e.department_id
	left join positions p on p.id = e.position_id`

func scanEmployeeDetail(row interface{ Scan(...any) error }) (*EmployeeDetail, error) {
	var d EmployeeDetail
	err := row.Scan(
		&d.ID, &d.Code, &d.AccountID, &d.DepartmentID, &d.PositionID, &d.HireDate, &d.Status,
		&d.CreatedAt, &d.UpdatedAt,
		&d.AccountEmail, &d.AccountStatus, &d.DepartmentName, &d.PositionName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PGStore) Detail(ctx context.Context, id string) (*EmployeeDetail, error) {
	return scanEmployeeDetail(s.db.QueryRowContext(ctx,
		employeeDetailQuery+` where e.id=$1`, id))
}

func (s *PGStore) ListDetails(ctx context.Context) ([]*EmployeeDetail, error) {
	rows, err := s.db.QueryContext(ctx, employeeDetailQuery+` order by e.code asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*EmployeeDetail
	for rows.Next() {
		d, err := scanEmployeeDetail(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// NextCode derives the next sequential code from the highest existing one.
// Codes are zero-padded to three digits but keep growing past EMP999.
func (s *PGStore) NextCode(ctx context.Context) (string, error) {
	var last string
	err := s.db.QueryRowContext(ctx,
		`select code from employees order by length(code) desc, code desc limit 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return "EMP001", nil
	}
	if err != nil {
		return "", err
	}
	next := 1
	var n int
	if _, err := fmt.Sscanf(last, "EMP%d", &n); err == nil {
		next = n + 1
	}
	return fmt.Sprintf("EMP%03d", next), nil
}

// Departments --------------------------------------------------------------

func (s *PGStore) FindOrCreateDepartment(ctx context.Context, name string) (*Department, error) {
	d := &Department{ID: ids.New(), Name: name}
	err := s.db.QueryRowContext(ctx,
		`insert into departments(id, name, description)
		 values($1,$2,'')
		 on conflict (name) do update set name = excluded.name
		 returning id, name, description, created_at`,
		d.ID, name,
	).Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PGStore) DepartmentByID(ctx context.Context, id string) (*Department, error) {
	var d Department
	err := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from departments where id=$1`, id,
	).Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDepartmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PGStore) ListDepartments(ctx context.Context) ([]*Department, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at from departments order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &d)
	}
	return res, rows.Err()
}

// Positions ----------------------------------------------------------------

func (s *PGStore) FindOrCreatePosition(ctx context.Context, name string) (*Position, error) {
	p := &Position{ID: ids.New(), Name: name}
	err := s.db.QueryRowContext(ctx,
		`insert into positions(id, name, description)
		 values($1,$2,'')
		 on conflict (name) do update set name = excluded.name
		 returning id, name, description, created_at`,
		p.ID, name,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PGStore) PositionByID(ctx context.Context, id string) (*Position, error) {
	var p Position
	err := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from positions where id=$1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) ListPositions(ctx context.Context) ([]*Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at from positions order by name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &p)
	}
	return res, rows.Err()
}
