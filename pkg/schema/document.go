package schema

// RuleDocument is the import format for a subject's rule collection:
// the payload accepted by the import command and the panel import endpoint.
type RuleDocument struct {
	Subject string `json:"subject"`
	Rules   []Rule `json:"rules"`
}
