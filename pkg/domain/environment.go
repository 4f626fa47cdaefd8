package domain

// Environment describes where a flow's runs execute. The engine treats
// it as an opaque tagged bag: Kind names the variant and Fields carries
// its settings verbatim, so environments authored against executors
// this engine has never seen still round-trip through storage.
type Environment struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewEnvironment builds an environment of the given kind.
func NewEnvironment(kind string, fields map[string]any) *Environment {
	return &Environment{Kind: kind, Fields: fields}
}
