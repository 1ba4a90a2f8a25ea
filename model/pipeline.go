package model

// TriggerType is both the kind of change recorded on a topic and the kind of
// change a pipeline reacts to.
type TriggerType string

const (
	TriggerInsert        TriggerType = "insert"
	TriggerMerge         TriggerType = "merge"
	TriggerInsertOrMerge TriggerType = "insert-or-merge"
	TriggerDelete        TriggerType = "delete"
)

// Pipeline is a declarative reaction graph bound to one trigger topic.
// Definitions are immutable once loaded; an edit produces a new value.
type Pipeline struct {
	PipelineID  string          `yaml:"pipelineId" json:"pipelineId" validate:"required"`
	TopicID     string          `yaml:"topicId" json:"topicId" validate:"required"`
	Name        string          `yaml:"name" json:"name"`
	Type        TriggerType     `yaml:"type" json:"type" validate:"required,oneof=insert merge insert-or-merge delete"`
	Conditional bool            `yaml:"conditional" json:"conditional"`
	On          *ParameterJoint `yaml:"on,omitempty" json:"on,omitempty"`
	Stages      []Stage         `yaml:"stages" json:"stages" validate:"dive"`
	Enabled     bool            `yaml:"enabled" json:"enabled"`
	TenantID    string          `yaml:"tenantId" json:"tenantId"`
	Version     int             `yaml:"version" json:"version"`
}

// Stage groups units behind one prerequisite.
type Stage struct {
	StageID     string          `yaml:"stageId" json:"stageId"`
	Name        string          `yaml:"name" json:"name"`
	Conditional bool            `yaml:"conditional" json:"conditional"`
	On          *ParameterJoint `yaml:"on,omitempty" json:"on,omitempty"`
	Units       []Unit          `yaml:"units" json:"units" validate:"dive"`
}

// Unit runs its actions once, or once per element of LoopVariableName.
type Unit struct {
	UnitID           string          `yaml:"unitId" json:"unitId"`
	Name             string          `yaml:"name" json:"name"`
	LoopVariableName string          `yaml:"loopVariableName,omitempty" json:"loopVariableName,omitempty"`
	Conditional      bool            `yaml:"conditional" json:"conditional"`
	On               *ParameterJoint `yaml:"on,omitempty" json:"on,omitempty"`
	Do               []Action        `yaml:"do" json:"do" validate:"dive"`
}

// HasLoop reports whether the unit iterates over a list variable.
func (u Unit) HasLoop() bool { return u.LoopVariableName != "" }

// ActionType tags the kind of a pipeline action.
type ActionType string

const (
	ActionAlarm            ActionType = "alarm"
	ActionCopyToMemory     ActionType = "copy-to-memory"
	ActionWriteToExternal  ActionType = "write-to-external"
	ActionExists           ActionType = "exists"
	ActionReadRow          ActionType = "read-row"
	ActionReadRows         ActionType = "read-rows"
	ActionReadFactor       ActionType = "read-factor"
	ActionReadFactors      ActionType = "read-factors"
	ActionInsertRow        ActionType = "insert-row"
	ActionMergeRow         ActionType = "merge-row"
	ActionInsertOrMergeRow ActionType = "insert-or-merge-row"
	ActionWriteFactor      ActionType = "write-factor"
	ActionDeleteRow        ActionType = "delete-row"
	ActionDeleteRows       ActionType = "delete-rows"
)

// IsRead reports whether the action only reads topic data.
func (t ActionType) IsRead() bool {
	switch t {
	case ActionExists, ActionReadRow, ActionReadRows, ActionReadFactor, ActionReadFactors:
		return true
	}
	return false
}

// IsWrite reports whether the action inserts or updates topic data.
func (t ActionType) IsWrite() bool {
	switch t {
	case ActionInsertRow, ActionMergeRow, ActionInsertOrMergeRow, ActionWriteFactor:
		return true
	}
	return false
}

// IsDelete reports whether the action deletes topic data.
func (t ActionType) IsDelete() bool {
	return t == ActionDeleteRow || t == ActionDeleteRows
}

// AlarmSeverity is the level an alarm action logs at.
type AlarmSeverity string

const (
	SeverityCritical AlarmSeverity = "critical"
	SeverityHigh     AlarmSeverity = "high"
	SeverityMedium   AlarmSeverity = "medium"
	SeverityLow      AlarmSeverity = "low"
)

// Arithmetic aggregates a factor value on read or on merge.
type Arithmetic string

const (
	ArithmeticNone    Arithmetic = "none"
	ArithmeticSum     Arithmetic = "sum"
	ArithmeticCount   Arithmetic = "count"
	ArithmeticAverage Arithmetic = "avg"
	ArithmeticMax     Arithmetic = "max"
	ArithmeticMin     Arithmetic = "min"
)

// IsNone reports whether no aggregation applies.
func (a Arithmetic) IsNone() bool { return a == "" || a == ArithmeticNone }

// Action is one declarative step of a unit. Only the fields relevant to
// Type are populated.
type Action struct {
	ActionID string     `yaml:"actionId" json:"actionId"`
	Type     ActionType `yaml:"type" json:"type" validate:"required"`

	// alarm
	Severity    AlarmSeverity   `yaml:"severity,omitempty" json:"severity,omitempty"`
	Message     string          `yaml:"message,omitempty" json:"message,omitempty"`
	Conditional bool            `yaml:"conditional,omitempty" json:"conditional,omitempty"`
	On          *ParameterJoint `yaml:"on,omitempty" json:"on,omitempty"`

	// copy-to-memory and reads
	VariableName string     `yaml:"variableName,omitempty" json:"variableName,omitempty"`
	Source       *Parameter `yaml:"source,omitempty" json:"source,omitempty"`

	// write-to-external
	ExternalWriterID string `yaml:"externalWriterId,omitempty" json:"externalWriterId,omitempty"`
	EventCode        string `yaml:"eventCode,omitempty" json:"eventCode,omitempty"`

	// topic reads and writes
	TopicID    string          `yaml:"topicId,omitempty" json:"topicId,omitempty"`
	FactorID   string          `yaml:"factorId,omitempty" json:"factorId,omitempty"`
	By         *ParameterJoint `yaml:"by,omitempty" json:"by,omitempty"`
	Arithmetic Arithmetic      `yaml:"arithmetic,omitempty" json:"arithmetic,omitempty"`
	Mapping    []MappingFactor `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

// MappingFactor maps a source parameter onto one factor of the target topic.
type MappingFactor struct {
	FactorID   string     `yaml:"factorId" json:"factorId" validate:"required"`
	Source     *Parameter `yaml:"source" json:"source" validate:"required"`
	Arithmetic Arithmetic `yaml:"arithmetic,omitempty" json:"arithmetic,omitempty"`
}
