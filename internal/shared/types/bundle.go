package types

// Module is one ability container declared by a bundle
type Module struct {
	Name      string   `json:"name" yaml:"name" toml:"name"`
	Abilities []string `json:"abilities" yaml:"abilities" toml:"abilities"`
}

// Bundle is an installed application as described by its manifest
type Bundle struct {
	Name         string   `json:"name" yaml:"name" toml:"name"`
	ProcessName  string   `json:"process_name,omitempty" yaml:"process_name" toml:"process_name"`
	KeepAlive    bool     `json:"keep_alive" yaml:"keep_alive" toml:"keep_alive"`
	APIVersion   uint32   `json:"api_version" yaml:"api_version" toml:"api_version"`
	SupportCache string   `json:"support_process_cache,omitempty" yaml:"support_process_cache" toml:"support_process_cache"`
	Command      string   `json:"command" yaml:"command" toml:"command"`
	Args         []string `json:"args,omitempty" yaml:"args" toml:"args"`
	Modules      []Module `json:"modules" yaml:"modules" toml:"modules"`

	// Source is the manifest path the bundle was loaded from
	Source string `json:"source,omitempty" yaml:"-" toml:"-"`
}

// Process returns the process name, defaulting to the bundle name
func (b *Bundle) Process() string {
	if b.ProcessName != "" {
		return b.ProcessName
	}
	return b.Name
}

// HasModule reports whether the bundle declares the module
func (b *Bundle) HasModule(name string) bool {
	for _, m := range b.Modules {
		if m.Name == name {
			return true
		}
	}
	return false
}
