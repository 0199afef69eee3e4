package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	defaultNamespace = "recovery"
	defaultTTL       = 30
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("registry: client is closed")

// Client is the etcd-backed Registry. Each registered instance holds an
// etcd lease renewed every TTL/3 by a background goroutine, so entries
// vanish automatically when their owner dies.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient connects to etcd and verifies reachability. The caller must
// Close the client to stop keepalive goroutines.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry: endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := clientTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("registry: tls setup: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("registry: connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("registry: health check: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewClientFromEnv connects using the RECOVERY_REGISTRY_ENDPOINTS
// environment variable (comma-separated etcd endpoints). An unset
// variable returns (nil, nil): the engine works without a registry, it
// just cannot recommend alternatives from one.
func NewClientFromEnv() (*Client, error) {
	raw := os.Getenv("RECOVERY_REGISTRY_ENDPOINTS")
	if raw == "" {
		return nil, nil
	}

	endpoints := strings.Split(raw, ",")
	for i, ep := range endpoints {
		endpoints[i] = strings.TrimSpace(ep)
	}
	return NewClient(Config{Endpoints: endpoints})
}

// Register writes the instance under a fresh lease and starts its
// keepalive goroutine. Re-registering an InstanceID replaces the entry
// and restarts the keepalive.
func (c *Client) Register(ctx context.Context, info ToolInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if cancelFn, ok := c.cancelFns[info.InstanceID]; ok {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("registry: lease grant: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("registry: marshal tool info: %w", err)
	}

	key := c.instanceKey(info.Name, info.InstanceID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("registry: register: %w", err)
	}

	c.leases[info.InstanceID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[info.InstanceID] = cancel
	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, info.InstanceID)

	return nil
}

// Deregister revokes the instance's lease, deleting its entry at once.
func (c *Client) Deregister(ctx context.Context, info ToolInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if cancelFn, ok := c.cancelFns[info.InstanceID]; ok {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseID, ok := c.leases[info.InstanceID]
	if !ok {
		return nil
	}
	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("registry: lease revoke: %w", err)
	}
	delete(c.leases, info.InstanceID)
	return nil
}

// Discover returns all live instances of the named tool.
func (c *Client) Discover(ctx context.Context, name string) ([]ToolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.query(ctx, c.toolPrefix(name))
}

// DiscoverByCapability scans every registered tool and keeps instances
// advertising the capability.
func (c *Client) DiscoverByCapability(ctx context.Context, capability string) ([]ToolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	all, err := c.query(ctx, c.rootPrefix())
	if err != nil {
		return nil, err
	}
	matched := make([]ToolInfo, 0, len(all))
	for _, info := range all {
		if info.HasCapability(capability) {
			matched = append(matched, info)
		}
	}
	return matched, nil
}

// Watch emits the instance list for a tool on every change, starting
// with the current state.
func (c *Client) Watch(ctx context.Context, name string) (<-chan []ToolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	ch := make(chan []ToolInfo, 1)

	initial, err := c.query(ctx, c.toolPrefix(name))
	if err != nil {
		return nil, err
	}
	ch <- initial

	watchChan := c.client.Watch(ctx, c.toolPrefix(name), clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok || watchResp.Err() != nil {
					return
				}

				instances, err := c.query(context.Background(), c.toolPrefix(name))
				if err != nil {
					continue
				}

				select {
				case ch <- instances:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops all keepalives and watches and closes the etcd connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()
	return c.client.Close()
}

func (c *Client) query(ctx context.Context, prefix string) ([]ToolInfo, error) {
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: discover: %w", err)
	}

	instances := make([]ToolInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info ToolInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		instances = append(instances, info)
	}
	return instances, nil
}

// keepalive renews the lease every TTL/3 until cancelled or the lease
// becomes invalid.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, instanceID string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				c.mu.Lock()
				delete(c.leases, instanceID)
				delete(c.cancelFns, instanceID)
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *Client) rootPrefix() string {
	return fmt.Sprintf("/%s/tools/", c.namespace)
}

func (c *Client) toolPrefix(name string) string {
	return fmt.Sprintf("/%s/tools/%s/", c.namespace, name)
}

func (c *Client) instanceKey(name, instanceID string) string {
	return fmt.Sprintf("/%s/tools/%s/%s", c.namespace, name, instanceID)
}
