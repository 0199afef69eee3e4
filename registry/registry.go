// Package registry tracks live tools so the engine can recommend
// working substitutes for a failing one.
//
// Tools register themselves with a capability list and stay visible for
// as long as their lease is renewed; a crashed tool disappears when its
// lease expires. The etcd-backed Client serves shared deployments, and
// MemoryRegistry serves tests and single-process embedding. The
// Recommender adapter turns discovery results into ranked
// alternative-tool suggestions for the plan builder.
package registry

import (
	"context"
	"time"
)

// ToolInfo describes one registered tool instance. Multiple instances of
// the same tool may be live at once, each with its own InstanceID.
type ToolInfo struct {
	// Name is the tool name callers invoke (e.g. "http-fetch").
	Name string `json:"name"`

	// Version is the tool's semantic version.
	Version string `json:"version"`

	// InstanceID uniquely identifies this running instance.
	InstanceID string `json:"instance_id"`

	// Endpoint is where the instance can be reached, "host:port" or
	// "unix:///path".
	Endpoint string `json:"endpoint"`

	// Capabilities lists the operations this tool can perform. The
	// recommender matches these against the failing operation.
	Capabilities []string `json:"capabilities,omitempty"`

	// Metadata carries free-form attributes.
	Metadata map[string]string `json:"metadata,omitempty"`

	// RegisteredAt is when this instance registered.
	RegisteredAt time.Time `json:"registered_at"`
}

// HasCapability reports whether the tool advertises the capability.
func (t ToolInfo) HasCapability(capability string) bool {
	for _, c := range t.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Registry is the tool discovery interface. Implementations must be
// safe for concurrent use.
type Registry interface {
	// Register makes the instance discoverable. Re-registering the same
	// InstanceID updates the entry.
	Register(ctx context.Context, info ToolInfo) error

	// Deregister removes the instance. Unknown instances are a no-op.
	Deregister(ctx context.Context, info ToolInfo) error

	// Discover returns all live instances of the named tool.
	Discover(ctx context.Context, name string) ([]ToolInfo, error)

	// DiscoverByCapability returns all live instances advertising the
	// capability, across every tool name.
	DiscoverByCapability(ctx context.Context, capability string) ([]ToolInfo, error)

	// Watch emits the current instance list for a tool whenever it
	// changes, starting with the present state. The channel closes when
	// ctx ends or the registry closes.
	Watch(ctx context.Context, name string) (<-chan []ToolInfo, error)

	// Close releases resources and stops background goroutines.
	Close() error
}

// Config holds connection settings for the etcd-backed registry.
type Config struct {
	// Endpoints lists the etcd cluster members.
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace prefixes every key. Entries live under
	// /{namespace}/tools/{name}/{instance-id}. Default "recovery".
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds; instances that stop
	// renewing disappear after this long. Default 30.
	TTL int `json:"ttl" yaml:"ttl"`

	// TLS enables mutual TLS towards etcd when set.
	TLS *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig holds certificate paths for mutual TLS with etcd.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
}
