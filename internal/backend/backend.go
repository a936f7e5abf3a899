package backend

// Invocation carries the resolved file paths one backend run needs.
// Fields a given backend does not use stay empty.
type Invocation struct {
	Entrypoint string
	ToolDir    string
	Image      string
	Video      string
	Audio      string
	Output     string
	Checkpoint string
	ConfigPath string
}

// Descriptor is the fixed per-backend invocation template: where the tool
// lives, which entrypoint scripts it may expose (ordered, first match wins),
// how to build its argument list, and how it reports output.
type Descriptor struct {
	Name              string
	Dir               string
	Entrypoints       []string
	NeedsVideo        bool
	AcceptsCheckpoint bool
	DefaultCheckpoint string
	OutputIsDir       bool
	Args              func(in Invocation) []string
	// StageConfig, when set, returns a value marshaled to a temporary YAML
	// file whose path is exposed to Args as Invocation.ConfigPath.
	StageConfig func(in Invocation) any
	SetupHint   string
}

// Registry maps backend identifiers to their descriptors. Exact string
// match only; the set is closed.
type Registry struct {
	byName map[string]*Descriptor
	names  []string
}

// NewRegistry builds the registry of the five wrapped backends.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Descriptor)}
	for _, desc := range descriptors() {
		r.byName[desc.Name] = desc
		r.names = append(r.names, desc.Name)
	}
	return r
}

// Get returns the descriptor for an exact backend name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	desc, ok := r.byName[name]
	return desc, ok
}

// Names returns backend identifiers in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
