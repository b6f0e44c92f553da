package workflow

import "context"

// Store describes persistence operations required by the workflow engine.
type Store interface {
	Requests(ctx context.Context) RequestStore
	Workflows(ctx context.Context) WorkflowStore
}

// RequestStore manages change-requests. The write operations take the audit
// entry alongside the mutation: both land in one transaction, and a failed
// audit insert fails the whole operation.
type RequestStore interface {
	// Create inserts the request and, when task is non-nil, its workflow
	// entry atomically. Drafts pass a nil task.
	Create(ctx context.Context, req *Request, task *Workflow) error
	Find(ctx context.Context, id string) (*Request, error)
	// UpdateWithLog persists the request row and appends the audit entry in
	// one transaction.
	UpdateWithLog(ctx context.Context, req *Request, entry *Workflow) error
	Detail(ctx context.Context, id string) (*RequestDetail, error)
	List(ctx context.Context) ([]*RequestDetail, error)
}

// WorkflowStore manages the append-only audit/task log.
type WorkflowStore interface {
	Append(ctx context.Context, entry *Workflow) error
	Find(ctx context.Context, id string) (*Workflow, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]*Workflow, error)
	// ListPending returns the reviewer queue. Draft requests never appear
	// here because Drafts produce no entries.
	ListPending(ctx context.Context) ([]*Workflow, error)
	// SetStatus updates the entry status and, when the entry links a
	// request, moves the request to the same status in one transaction.
	SetStatus(ctx context.Context, id string, status Status) (*Workflow, error)
}
