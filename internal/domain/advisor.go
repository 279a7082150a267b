package domain

// AdvisorIdentity describes one named advisor handed to the external reasoning engine.
type AdvisorIdentity struct {
	Name        string   `json:"name"        yaml:"name"`
	Domain      string   `json:"domain"      yaml:"domain"`
	Model       string   `json:"model"       yaml:"model"`
	Description string   `json:"description" yaml:"description"`
	Instruction string   `json:"instruction" yaml:"instruction"`
	Tools       []string `json:"tools,omitempty"     yaml:"tools,omitempty"`
	SubAgents   []string `json:"sub_agents,omitempty" yaml:"sub_agents,omitempty"`
}
