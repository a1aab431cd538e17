package llm

// TaskType identifies the type of LLM task.
type TaskType string

// Task type constants.
const (
	TaskTypeCluster   TaskType = "faq_cluster"
	TaskTypeNarrative TaskType = "faq_narrative"
)

// ProviderModel specifies a provider and model combination.
type ProviderModel struct {
	Provider ProviderName
	Model    string
}

// TaskProviderChain defines the provider/model fallback chain for a task.
type TaskProviderChain struct {
	Default   ProviderModel
	Fallbacks []ProviderModel
}

// DefaultTaskConfig returns the provider/model fallback chain per task.
// Clustering needs the larger context and stricter instruction following.
func DefaultTaskConfig() map[TaskType]TaskProviderChain {
	return map[TaskType]TaskProviderChain{
		// Cluster: Google → OpenAI → Anthropic
		TaskTypeCluster: {
			Default: ProviderModel{Provider: ProviderGoogle, Model: "gemini-2.0-flash"},
			Fallbacks: []ProviderModel{
				{Provider: ProviderOpenAI, Model: "gpt-4o"},
				{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5"},
			},
		},

		// Narrative: Google → Anthropic → OpenAI
		TaskTypeNarrative: {
			Default: ProviderModel{Provider: ProviderGoogle, Model: "gemini-2.0-flash"},
			Fallbacks: []ProviderModel{
				{Provider: ProviderAnthropic, Model: "claude-haiku-4-5"},
				{Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
			},
		},
	}
}

// GetProviderChain returns the full chain (default + fallbacks) as a slice.
func (c TaskProviderChain) GetProviderChain() []ProviderModel {
	chain := make([]ProviderModel, 0, 1+len(c.Fallbacks))
	chain = append(chain, c.Default)
	chain = append(chain, c.Fallbacks...)

	return chain
}
