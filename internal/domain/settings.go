package domain

// DefaultTransferCount is the fallback transfer limit when neither the
// graph nor its project configures one.
const DefaultTransferCount = 10

// ModelConfig selects a model plus provider-specific options for one slot.
type ModelConfig struct {
	Model           string         `json:"model"`
	ProviderOptions map[string]any `json:"providerOptions,omitempty"`
}

// ModelSettings holds the three model slots an agent or graph can configure.
// A nil slot means "inherit from the enclosing scope".
type ModelSettings struct {
	Base             *ModelConfig `json:"base,omitempty"`
	StructuredOutput *ModelConfig `json:"structuredOutput,omitempty"`
	Summarizer       *ModelConfig `json:"summarizer,omitempty"`
}

// Slot names for ModelSettings, used by the update cascade.
const (
	ModelSlotBase             = "base"
	ModelSlotStructuredOutput = "structuredOutput"
	ModelSlotSummarizer       = "summarizer"
)

// ModelSlots lists the cascade-managed slots in a stable order.
var ModelSlots = []string{ModelSlotBase, ModelSlotStructuredOutput, ModelSlotSummarizer}

// Slot returns the config for a named slot, or nil.
func (m *ModelSettings) Slot(name string) *ModelConfig {
	if m == nil {
		return nil
	}
	switch name {
	case ModelSlotBase:
		return m.Base
	case ModelSlotStructuredOutput:
		return m.StructuredOutput
	case ModelSlotSummarizer:
		return m.Summarizer
	}
	return nil
}

// SetSlot replaces the config for a named slot.
func (m *ModelSettings) SetSlot(name string, cfg *ModelConfig) {
	switch name {
	case ModelSlotBase:
		m.Base = cfg
	case ModelSlotStructuredOutput:
		m.StructuredOutput = cfg
	case ModelSlotSummarizer:
		m.Summarizer = cfg
	}
}

// StopWhen holds execution limits, inheritable project → graph → agent.
// Nil fields inherit from the enclosing scope.
type StopWhen struct {
	StepCountIs     *int `json:"stepCountIs,omitempty"`
	TransferCountIs *int `json:"transferCountIs,omitempty"`
}

// InheritTransferCount fills TransferCountIs from the project when unset,
// defaulting to DefaultTransferCount when the project is also silent.
func (s *StopWhen) InheritTransferCount(project *StopWhen) {
	if s.TransferCountIs != nil {
		return
	}
	if project != nil && project.TransferCountIs != nil {
		v := *project.TransferCountIs
		s.TransferCountIs = &v
		return
	}
	v := DefaultTransferCount
	s.TransferCountIs = &v
}

// InheritStepCount fills StepCountIs from the project when unset.
// Unlike the transfer count there is no hard default: an agent with no
// configured or inherited step limit keeps running until its caller stops it.
func (s *StopWhen) InheritStepCount(project *StopWhen) {
	if s.StepCountIs != nil {
		return
	}
	if project != nil && project.StepCountIs != nil {
		v := *project.StepCountIs
		s.StepCountIs = &v
	}
}

// IntPtr is a small helper for building StopWhen literals.
func IntPtr(v int) *int { return &v }
