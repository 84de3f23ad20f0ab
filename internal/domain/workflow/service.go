package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrTemplateArchived rejects instantiation of an archived template.
var ErrTemplateArchived = errors.New("workflow: template is archived")

// TxRunner runs fn atomically; repositories called from fn observe the same
// transaction. The zero value runs fn directly, which is what the unit tests
// and any single-statement callers want.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	templates TemplateRepository
	instances InstanceRepository
	events    EventRepository
	runner    *Runner
	runTx     TxRunner
	now       func() time.Time
}

type ServiceOption func(*Service)

// WithTxRunner makes multi-write operations atomic.
func WithTxRunner(runTx TxRunner) ServiceOption {
	return func(s *Service) { s.runTx = runTx }
}

// WithNow substitutes the service's time source.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(templates TemplateRepository, instances InstanceRepository, events EventRepository, runner *Runner, opts ...ServiceOption) *Service {
	s := &Service{
		templates: templates,
		instances: instances,
		events:    events,
		runner:    runner,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Templates --

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for i := range t.Steps {
		step := &t.Steps[i]
		step.TemplateID = t.ID
		for j := range step.Branches {
			step.Branches[j].StepID = step.ID
		}
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	now := s.now()
	t.DateCreated = now
	t.LastEdited = now
	if t.Version == "" {
		t.Version = "1"
	}
	return s.runTx(ctx, func(ctx context.Context) error {
		return s.templates.Create(ctx, t)
	})
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, includeArchived bool, limit, offset int) ([]*Template, int, error) {
	return s.templates.List(ctx, includeArchived, limit, offset)
}

func (s *Service) ArchiveTemplate(ctx context.Context, id uuid.UUID) error {
	return s.templates.Archive(ctx, id)
}

// -- Instances --

// CreateInstance stamps out a Pending instance of a template for a patient.
// The workflow does not start until a start_workflow action is applied.
func (s *Service) CreateInstance(ctx context.Context, templateID, patientID uuid.UUID, name, description string) (*Instance, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.Archived {
		return nil, ErrTemplateArchived
	}
	in := NewInstanceFromTemplate(t, patientID, s.now())
	if name != "" {
		in.Name = name
	}
	if description != "" {
		in.Description = description
	}
	if err := s.runTx(ctx, func(ctx context.Context) error {
		return s.instances.Create(ctx, in)
	}); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) GetInstance(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return s.instances.GetByID(ctx, id)
}

func (s *Service) ListInstancesByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Instance, int, error) {
	return s.instances.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) InstanceEvents(ctx context.Context, id uuid.UUID) ([]Event, error) {
	return s.events.ListByInstance(ctx, id)
}

func (s *Service) view(ctx context.Context, instanceID uuid.UUID) (*View, error) {
	in, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetByID(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	return NewView(t, in)
}

// AvailableActions returns the actions currently legal against an instance.
func (s *Service) AvailableActions(ctx context.Context, instanceID uuid.UUID) ([]Action, error) {
	v, err := s.view(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return s.runner.AvailableActions(v), nil
}

// ApplyAction applies one action to an instance and persists the resulting
// state together with the events it produced. The instance is re-read and
// validated inside the write; an action that raced with another writer fails
// with *InvalidWorkflowActionError and persists nothing.
func (s *Service) ApplyAction(ctx context.Context, instanceID uuid.UUID, action Action) (*Instance, []Event, error) {
	var in *Instance
	var events []Event
	err := s.runTx(ctx, func(ctx context.Context) error {
		v, err := s.view(ctx, instanceID)
		if err != nil {
			return err
		}
		events, err = s.runner.Apply(ctx, v, action)
		if err != nil {
			return err
		}
		if err := s.instances.Update(ctx, v.Instance); err != nil {
			return err
		}
		if err := s.events.Append(ctx, v.Instance.ID, events); err != nil {
			return err
		}
		in = v.Instance
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return in, events, nil
}

// EvaluateCurrentStep resolves the current step's branches for the
// instance's patient without mutating anything. Callers use it to surface
// where the workflow would go next and which variables are still missing.
func (s *Service) EvaluateCurrentStep(ctx context.Context, instanceID uuid.UUID) (BranchResolution, error) {
	v, err := s.view(ctx, instanceID)
	if err != nil {
		return BranchResolution{}, err
	}
	cur := v.CurrentStep()
	if cur == nil {
		return BranchResolution{}, fmt.Errorf("workflow: instance %s has no current step", instanceID)
	}
	ts := v.TemplateStepFor(cur)
	return EvaluateBranches(ctx, s.runner.evaluator, v.Instance.PatientID, ts.Branches), nil
}

// CancelInstance terminates a non-terminal instance.
func (s *Service) CancelInstance(ctx context.Context, instanceID uuid.UUID) (*Instance, error) {
	var in *Instance
	err := s.runTx(ctx, func(ctx context.Context) error {
		v, err := s.view(ctx, instanceID)
		if err != nil {
			return err
		}
		if err := s.runner.Cancel(v); err != nil {
			return err
		}
		if err := s.instances.Update(ctx, v.Instance); err != nil {
			return err
		}
		in = v.Instance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}
