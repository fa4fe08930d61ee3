package adapters

type BuiltInType = string

const (
	LocalType BuiltInType = "local"
)

// RegisterBuiltins registers all built-in providers by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, types ...BuiltInType) {
	if len(types) == 0 {
		// Include all built-in providers here when adding implementations
		types = append(types, LocalType)
	}

	for _, key := range types {
		switch key {
		case LocalType:
			r.Register(LocalType, FactoryFunc(newLocalFromJSON))
		}
	}
}
