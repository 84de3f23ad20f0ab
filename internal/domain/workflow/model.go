package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstancePending   InstanceStatus = "Pending"
	InstanceActive    InstanceStatus = "Active"
	InstanceCompleted InstanceStatus = "Completed"
	InstanceCancelled InstanceStatus = "Cancelled"
)

// Terminal reports whether the instance can no longer change.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceCancelled
}

// StepStatus is the lifecycle state of one instance step. Steps only move
// forward: Pending, then Active, then Completed.
type StepStatus string

const (
	StepPending   StepStatus = "Pending"
	StepActive    StepStatus = "Active"
	StepCompleted StepStatus = "Completed"
)

// RuleGroup is a branch condition: a JSON-logic rule string plus the data
// sources it declares.
type RuleGroup struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Rule        string    `db:"rule" json:"rule"`
	DataSources []string  `db:"data_sources" json:"data_sources,omitempty"`
}

// TemplateStepBranch is an edge from a template step to a target step, or to
// the end of the workflow when TargetStepID is nil. An absent condition makes
// the branch unconditional.
type TemplateStepBranch struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	StepID       uuid.UUID  `db:"step_id" json:"step_id"`
	TargetStepID *uuid.UUID `db:"target_step_id" json:"target_step_id,omitempty"`
	Condition    *RuleGroup `db:"condition" json:"condition,omitempty"`
}

// TemplateStep is one step of a workflow template, with its outgoing branches
// in priority order.
type TemplateStep struct {
	ID          uuid.UUID            `db:"id" json:"id"`
	TemplateID  uuid.UUID            `db:"template_id" json:"template_id"`
	Name        string               `db:"name" json:"name"`
	Description string               `db:"description" json:"description,omitempty"`
	FormID      *uuid.UUID           `db:"form_id" json:"form_id,omitempty"`
	Branches    []TemplateStepBranch `json:"branches,omitempty"`
}

// Template is the static, versioned definition of a multi-step clinical
// protocol. It is immutable once created; edits produce a new version.
type Template struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description,omitempty"`
	Archived       bool           `db:"archived" json:"archived"`
	StartingStepID *uuid.UUID     `db:"starting_step_id" json:"starting_step_id,omitempty"`
	DateCreated    time.Time      `db:"date_created" json:"date_created"`
	LastEdited     time.Time      `db:"last_edited" json:"last_edited"`
	Version        string         `db:"version" json:"version"`
	Classification *string        `db:"classification" json:"classification,omitempty"`
	Steps          []TemplateStep `json:"steps"`
}

// Validate checks the template's structural invariants: the starting step and
// every branch target must name a step that exists in this template.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	ids := make(map[uuid.UUID]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.Name == "" {
			return fmt.Errorf("step name is required")
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate step id %s", s.ID)
		}
		ids[s.ID] = true
	}

	if t.StartingStepID == nil {
		return fmt.Errorf("starting_step_id is required")
	}
	if !ids[*t.StartingStepID] {
		return fmt.Errorf("starting_step_id %s does not name a step", *t.StartingStepID)
	}

	for _, s := range t.Steps {
		for _, b := range s.Branches {
			if b.TargetStepID != nil && !ids[*b.TargetStepID] {
				return fmt.Errorf("branch target %s in step %q does not name a step", *b.TargetStepID, s.Name)
			}
		}
	}
	return nil
}

// StepByID returns the template step with the given id, or nil.
func (t *Template) StepByID(id uuid.UUID) *TemplateStep {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// InstanceStep is the per-instance progress of one template step.
type InstanceStep struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	InstanceID     uuid.UUID       `db:"instance_id" json:"instance_id"`
	TemplateStepID uuid.UUID       `db:"template_step_id" json:"template_step_id"`
	Name           string          `db:"name" json:"name"`
	Status         StepStatus      `db:"status" json:"status"`
	StartDate      *time.Time      `db:"start_date" json:"start_date,omitempty"`
	CompletionDate *time.Time      `db:"completion_date" json:"completion_date,omitempty"`
	Data           json.RawMessage `db:"data" json:"data,omitempty"`
	FormID         *uuid.UUID      `db:"form_id" json:"form_id,omitempty"`
}

// Instance is one execution of a template against one patient. Its status,
// current step pointer and step statuses are mutated exclusively by the
// Runner; any other writer breaks the state machine's invariants.
type Instance struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description,omitempty"`
	StartDate      *time.Time     `db:"start_date" json:"start_date,omitempty"`
	CurrentStepID  *uuid.UUID     `db:"current_step_id" json:"current_step_id,omitempty"`
	LastEdited     time.Time      `db:"last_edited" json:"last_edited"`
	CompletionDate *time.Time     `db:"completion_date" json:"completion_date,omitempty"`
	Status         InstanceStatus `db:"status" json:"status"`
	TemplateID     uuid.UUID      `db:"workflow_template_id" json:"workflow_template_id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	Steps          []InstanceStep `json:"steps"`
}

// NewInstanceFromTemplate stamps out a Pending instance of a template for a
// patient: one Pending step per template step with fresh identifiers and null
// timestamps.
func NewInstanceFromTemplate(t *Template, patientID uuid.UUID, now time.Time) *Instance {
	inst := &Instance{
		ID:          uuid.New(),
		Name:        t.Name,
		Description: t.Description,
		Status:      InstancePending,
		TemplateID:  t.ID,
		PatientID:   patientID,
		LastEdited:  now,
		Steps:       make([]InstanceStep, 0, len(t.Steps)),
	}
	for _, s := range t.Steps {
		inst.Steps = append(inst.Steps, InstanceStep{
			ID:             uuid.New(),
			InstanceID:     inst.ID,
			TemplateStepID: s.ID,
			Name:           s.Name,
			Status:         StepPending,
			FormID:         s.FormID,
		})
	}
	return inst
}

// StepByID returns the instance step with the given id, or nil.
func (in *Instance) StepByID(id uuid.UUID) *InstanceStep {
	for i := range in.Steps {
		if in.Steps[i].ID == id {
			return &in.Steps[i]
		}
	}
	return nil
}

// StepForTemplateStep returns the instance step generated from the given
// template step, or nil.
func (in *Instance) StepForTemplateStep(templateStepID uuid.UUID) *InstanceStep {
	for i := range in.Steps {
		if in.Steps[i].TemplateStepID == templateStepID {
			return &in.Steps[i]
		}
	}
	return nil
}

// AllStepsCompleted reports whether every instance step has completed.
func (in *Instance) AllStepsCompleted() bool {
	for i := range in.Steps {
		if in.Steps[i].Status != StepCompleted {
			return false
		}
	}
	return true
}
