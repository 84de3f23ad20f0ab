package workflow

import (
	"context"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	List(ctx context.Context, includeArchived bool, limit, offset int) ([]*Template, int, error)
	Archive(ctx context.Context, id uuid.UUID) error
}

type InstanceRepository interface {
	Create(ctx context.Context, in *Instance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	// Update persists the instance's mutable fields and the status and
	// timestamps of every step.
	Update(ctx context.Context, in *Instance) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Instance, int, error)
}

type EventRepository interface {
	// Append records the events in order at the tail of the instance's log.
	Append(ctx context.Context, instanceID uuid.UUID, events []Event) error
	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]Event, error)
}
