// Package adapters holds the connection providers that do the actual listing
// and transfer I/O, and the registry selecting one by connection type
package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/brettbedarf/zexplorer"
	"github.com/puzpuzpuz/xsync/v4"
)

// Provider bundles the capabilities of one connection
type Provider interface {
	zexplorer.NameResolverProvider
	Connection() string
	Lister() zexplorer.Lister
	Transfer() zexplorer.Transfer
	Deleter() zexplorer.Deleter
}

// Factory builds a provider from its raw JSON config
type Factory interface {
	NewProvider(raw []byte) (Provider, error)
}

// FactoryFunc adapts a plain function to [Factory]
type FactoryFunc func(raw []byte) (Provider, error)

func (f FactoryFunc) NewProvider(raw []byte) (Provider, error) { return f(raw) }

// Registry maps a connection type to its factory
type Registry struct {
	factories *xsync.Map[string, Factory]
}

func NewRegistry() *Registry {
	return &Registry{factories: xsync.NewMap[string, Factory]()}
}

// Register ties a factory to a connection type. The first registration of a
// type wins.
func (r *Registry) Register(connType string, f Factory) {
	r.factories.LoadOrStore(connType, f)
}

// GetFactory returns the factory registered for connType
func (r *Registry) GetFactory(connType string) (Factory, error) {
	f, ok := r.factories.Load(connType)
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q", connType)
	}
	return f, nil
}

// NewProvider picks the factory named by the config's "type" field. All
// expected types should be registered before calling this.
func (r *Registry) NewProvider(raw []byte) (Provider, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta.Type == "" {
		return nil, fmt.Errorf("provider config has no type")
	}
	f, err := r.GetFactory(meta.Type)
	if err != nil {
		return nil, err
	}
	return f.NewProvider(raw)
}
