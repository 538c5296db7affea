package models

// Problem is a failure of the generated program as reported by the
// remote service. A nil *Problem means the project is healthy.
type Problem struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}
