package model

// TopicType describes how rows of a topic are produced.
type TopicType string

const (
	TopicRaw       TopicType = "raw"
	TopicDistinct  TopicType = "distinct"
	TopicAggregate TopicType = "aggregate"
	TopicTime      TopicType = "time"
	TopicRatio     TopicType = "ratio"
)

// IsAggregation reports whether merges into the topic accumulate values.
func (t TopicType) IsAggregation() bool {
	return t == TopicAggregate || t == TopicTime || t == TopicRatio
}

// TopicKind separates kernel-owned topics from business topics.
type TopicKind string

const (
	TopicKindSystem   TopicKind = "system"
	TopicKindBusiness TopicKind = "business"
)

// EncryptMethod names how a factor value is protected at rest.
type EncryptMethod string

const (
	EncryptNone        EncryptMethod = "none"
	EncryptAES256      EncryptMethod = "aes256-pwd"
	EncryptChaCha20    EncryptMethod = "chacha20-pwd"
	EncryptMaskMail    EncryptMethod = "mask-mail"
	EncryptMaskCenter3 EncryptMethod = "mask-center-3"
	EncryptMaskLast6   EncryptMethod = "mask-last-6"
)

// IsNone reports whether the factor is stored as is.
func (m EncryptMethod) IsNone() bool { return m == "" || m == EncryptNone }

// IsReversible reports whether stored values can be decrypted.
func (m EncryptMethod) IsReversible() bool {
	return m == EncryptAES256 || m == EncryptChaCha20
}

// Reserved row columns maintained by the kernel.
const (
	ColumnID              = "id_"
	ColumnVersion         = "version_"
	ColumnTenantID        = "tenant_id_"
	ColumnInsertTime      = "insert_time_"
	ColumnUpdateTime      = "update_time_"
	ColumnAggregateAssist = "aggregate_assist_"
)

// Topic is a declared dataset.
type Topic struct {
	TopicID  string    `yaml:"topicId" json:"topicId" validate:"required"`
	Name     string    `yaml:"name" json:"name" validate:"required"`
	Type     TopicType `yaml:"type" json:"type" validate:"omitempty,oneof=raw distinct aggregate time ratio"`
	Kind     TopicKind `yaml:"kind" json:"kind" validate:"omitempty,oneof=system business"`
	Factors  []Factor  `yaml:"factors" json:"factors" validate:"dive"`
	TenantID string    `yaml:"tenantId" json:"tenantId"`
}

// Factor is one typed field of a topic.
type Factor struct {
	FactorID     string        `yaml:"factorId" json:"factorId" validate:"required"`
	Name         string        `yaml:"name" json:"name" validate:"required"`
	Type         string        `yaml:"type" json:"type"`
	DefaultValue string        `yaml:"defaultValue,omitempty" json:"defaultValue,omitempty"`
	Encrypt      EncryptMethod `yaml:"encrypt,omitempty" json:"encrypt,omitempty"`
}

// FactorByID returns the factor with the given id.
func (t *Topic) FactorByID(id string) (*Factor, bool) {
	for i := range t.Factors {
		if t.Factors[i].FactorID == id {
			return &t.Factors[i], true
		}
	}
	return nil, false
}

// FactorByName returns the factor with the given name.
func (t *Topic) FactorByName(name string) (*Factor, bool) {
	for i := range t.Factors {
		if t.Factors[i].Name == name {
			return &t.Factors[i], true
		}
	}
	return nil, false
}

// EncryptedFactors returns the factors that carry an encrypt method.
func (t *Topic) EncryptedFactors() []Factor {
	var out []Factor
	for _, f := range t.Factors {
		if !f.Encrypt.IsNone() {
			out = append(out, f)
		}
	}
	return out
}

// TopicTrigger records one persisted change of a topic row. It is the unit
// of cascading.
type TopicTrigger struct {
	Previous       map[string]any
	Current        map[string]any
	TriggerType    TriggerType
	InternalDataID string
}
