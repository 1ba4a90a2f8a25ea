package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchmen-go/kernel/model"
)

// Status is the outcome of one level of a run.
type Status string

const (
	StatusDone  Status = "DONE"
	StatusError Status = "ERROR"
)

// Entry holds the fields shared by every level of the log tree.
type Entry struct {
	Status       Status    `json:"status"`
	StartTime    time.Time `json:"startTime"`
	SpentInMills int64     `json:"spentInMills"`
	// Prerequisite is false when the level was skipped by its condition.
	Prerequisite bool   `json:"prerequisite"`
	Error        string `json:"error,omitempty"`
	Stack        string `json:"stack,omitempty"`
}

func newEntry() Entry {
	return Entry{StartTime: time.Now(), Prerequisite: true}
}

// Done marks the entry DONE and records the elapsed time.
func (e *Entry) Done() {
	e.Status = StatusDone
	e.SpentInMills = time.Since(e.StartTime).Milliseconds()
}

// Fail marks the entry ERROR with the error text and optional stack.
func (e *Entry) Fail(err error, stack string) {
	e.Status = StatusError
	if err != nil {
		e.Error = err.Error()
	}
	e.Stack = stack
	e.SpentInMills = time.Since(e.StartTime).Milliseconds()
}

// Skip marks the entry DONE with a failed prerequisite.
func (e *Entry) Skip() {
	e.Prerequisite = false
	e.Done()
}

// Failed reports whether the entry ended in ERROR.
func (e *Entry) Failed() bool { return e.Status == StatusError }

// ActionLog records one action execution.
type ActionLog struct {
	Entry
	UID      string           `json:"uid"`
	ActionID string           `json:"actionId"`
	Type     model.ActionType `json:"type"`
	// Value is what a read or copy stored, or what a write touched.
	Value       any    `json:"value,omitempty"`
	TopicID     string `json:"topicId,omitempty"`
	InsertCount int    `json:"insertCount"`
	UpdateCount int    `json:"updateCount"`
	DeleteCount int    `json:"deleteCount"`
}

// NewActionLog starts the log of an action.
func NewActionLog(action *model.Action) *ActionLog {
	return &ActionLog{
		Entry:    newEntry(),
		UID:      uuid.NewString(),
		ActionID: action.ActionID,
		Type:     action.Type,
		TopicID:  action.TopicID,
	}
}

// UnitLog records one execution of a unit. A looping unit produces one per
// element.
type UnitLog struct {
	Entry
	UnitID            string       `json:"unitId"`
	Name              string       `json:"name"`
	LoopVariableName  string       `json:"loopVariableName,omitempty"`
	LoopVariableValue any          `json:"loopVariableValue,omitempty"`
	Actions           []*ActionLog `json:"do"`
}

// NewUnitLog starts the log of a unit.
func NewUnitLog(unit *model.Unit) *UnitLog {
	return &UnitLog{
		Entry:            newEntry(),
		UnitID:           unit.UnitID,
		Name:             unit.Name,
		LoopVariableName: unit.LoopVariableName,
	}
}

// AddAction appends the log of an action.
func (u *UnitLog) AddAction(a *ActionLog) { u.Actions = append(u.Actions, a) }

// StageLog records one stage.
type StageLog struct {
	Entry
	StageID string     `json:"stageId"`
	Name    string     `json:"name"`
	Units   []*UnitLog `json:"units"`
}

// NewStageLog starts the log of a stage.
func NewStageLog(stage *model.Stage) *StageLog {
	return &StageLog{Entry: newEntry(), StageID: stage.StageID, Name: stage.Name}
}

// AddUnits appends unit logs in order.
func (s *StageLog) AddUnits(logs ...*UnitLog) { s.Units = append(s.Units, logs...) }

// PipelineLog is the root of the log tree of one run.
type PipelineLog struct {
	Entry
	UID        string         `json:"uid"`
	TraceID    string         `json:"traceId"`
	PipelineID string         `json:"pipelineId"`
	TopicID    string         `json:"topicId"`
	TenantID   string         `json:"tenantId,omitempty"`
	DataID     string         `json:"dataId,omitempty"`
	OldValue   map[string]any `json:"oldValue,omitempty"`
	NewValue   map[string]any `json:"newValue,omitempty"`
	Stages     []*StageLog    `json:"stages"`
}

// NewPipelineLog starts the log of a run.
func NewPipelineLog(pipeline *model.Pipeline, traceID, dataID string, previous, current map[string]any) *PipelineLog {
	return &PipelineLog{
		Entry:      newEntry(),
		UID:        uuid.NewString(),
		TraceID:    traceID,
		PipelineID: pipeline.PipelineID,
		TopicID:    pipeline.TopicID,
		TenantID:   pipeline.TenantID,
		DataID:     dataID,
		OldValue:   previous,
		NewValue:   current,
	}
}

// AddStage appends the log of a stage.
func (p *PipelineLog) AddStage(s *StageLog) { p.Stages = append(p.Stages, s) }

// EventType names the log on message brokers.
func (p *PipelineLog) EventType() string { return "pipeline.monitor.log" }

// Counts sums the row counts of every action in the tree.
func (p *PipelineLog) Counts() (inserted, updated, deleted int) {
	for _, s := range p.Stages {
		for _, u := range s.Units {
			for _, a := range u.Actions {
				inserted += a.InsertCount
				updated += a.UpdateCount
				deleted += a.DeleteCount
			}
		}
	}
	return inserted, updated, deleted
}

// FirstError returns the first error text found depth first.
func (p *PipelineLog) FirstError() string {
	if p.Error != "" {
		return p.Error
	}
	for _, s := range p.Stages {
		for _, u := range s.Units {
			for _, a := range u.Actions {
				if a.Error != "" {
					return a.Error
				}
			}
			if u.Error != "" {
				return u.Error
			}
		}
		if s.Error != "" {
			return s.Error
		}
	}
	return ""
}
