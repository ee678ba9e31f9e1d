package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const (
	DefaultEtcdPrefix = "/dmonitor"
	DefaultLeaseTTL   = 10 // seconds
)

// EtcdOptions configures an EtcdDirectory.
type EtcdOptions struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string // key prefix, DefaultEtcdPrefix when empty
	LeaseTTL    int64  // seconds, DefaultLeaseTTL when zero
	Picker      Picker
	Logger      *zap.Logger
}

// EtcdDirectory implements Directory on etcd v3, using etcd as a phonebook
// for services:
//
//	Key:   {prefix}/{ServiceName}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Publication uses TTL-based leases: if the server crashes, the lease expires
// and the entry disappears instead of lingering as a ghost instance.
//
// Resolve keeps a per-service instance cache filled by one prefix Get and then
// maintained by a Watch, so steady-state lookups do not hit etcd.
type EtcdDirectory struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	prefix string
	ttl    int64
	picker Picker
	logger *zap.Logger

	ctx    context.Context // bounds KeepAlive and Watch goroutines
	cancel context.CancelFunc

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID        // published key → lease
	caches map[string]map[string]ServiceInstance // service → key → instance
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(opts EtcdOptions) (*EtcdDirectory, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: etcd: %w", err)
	}

	d := &EtcdDirectory{
		client: c,
		prefix: strings.TrimSuffix(opts.Prefix, "/"),
		ttl:    opts.LeaseTTL,
		picker: opts.Picker,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
		caches: make(map[string]map[string]ServiceInstance),
	}
	if d.prefix == "" {
		d.prefix = DefaultEtcdPrefix
	}
	if d.ttl <= 0 {
		d.ttl = DefaultLeaseTTL
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

func (d *EtcdDirectory) servicePrefix(serviceName string) string {
	return d.prefix + "/" + serviceName + "/"
}

// Publish stores addr under serviceName with a TTL lease and keeps the lease alive
// until Unpublish or Close.
func (d *EtcdDirectory) Publish(ctx context.Context, serviceName, addr string) error {
	lease, err := d.client.Grant(ctx, d.ttl)
	if err != nil {
		return fmt.Errorf("discovery: grant lease: %w", err)
	}

	val, err := json.Marshal(ServiceInstance{Addr: addr, Weight: DefaultWeight})
	if err != nil {
		return err
	}

	key := d.servicePrefix(serviceName) + addr
	if _, err := d.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("discovery: put %s: %w", key, err)
	}

	// KeepAlive outlives the caller's ctx: it must run until the service is withdrawn.
	ch, err := d.client.KeepAlive(d.ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("discovery: keepalive: %w", err)
	}
	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		d.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	// Republishing moves the key to the new lease; the old one is withdrawn.
	d.mu.Lock()
	old, republished := d.leases[key]
	d.leases[key] = lease.ID
	d.mu.Unlock()
	if republished {
		if _, err := d.client.Revoke(ctx, old); err != nil {
			d.logger.Warn("revoke replaced lease", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Unpublish removes addr from serviceName and revokes its lease.
func (d *EtcdDirectory) Unpublish(ctx context.Context, serviceName, addr string) error {
	key := d.servicePrefix(serviceName) + addr
	if _, err := d.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("discovery: delete %s: %w", key, err)
	}

	d.mu.Lock()
	lease, ok := d.leases[key]
	delete(d.leases, key)
	d.mu.Unlock()
	if ok {
		if _, err := d.client.Revoke(ctx, lease); err != nil {
			return fmt.Errorf("discovery: revoke lease: %w", err)
		}
	}
	return nil
}

// Resolve picks one published address of serviceName.
func (d *EtcdDirectory) Resolve(ctx context.Context, serviceName string) (string, error) {
	d.mu.Lock()
	cache, ok := d.caches[serviceName]
	var instances []ServiceInstance
	if ok {
		instances = sortedInstances(cache)
	}
	d.mu.Unlock()

	if !ok {
		loaded, rev, err := d.load(ctx, serviceName)
		if err != nil {
			return "", err
		}
		instances = sortedInstances(loaded)

		d.mu.Lock()
		if _, raced := d.caches[serviceName]; !raced {
			d.caches[serviceName] = loaded
			go d.watch(serviceName, rev+1)
		}
		d.mu.Unlock()
	}

	addr, err := pick(d.picker, instances)
	if err != nil {
		return "", fmt.Errorf("discovery: resolve %s: %w", serviceName, err)
	}
	return addr, nil
}

// load fetches every instance under the service prefix along with the store revision.
func (d *EtcdDirectory) load(ctx context.Context, serviceName string) (map[string]ServiceInstance, int64, error) {
	resp, err := d.client.Get(ctx, d.servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, 0, fmt.Errorf("discovery: get %s: %w", serviceName, err)
	}

	instances := make(map[string]ServiceInstance, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst ServiceInstance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			d.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances[string(kv.Key)] = inst
	}
	return instances, resp.Header.Revision, nil
}

// watch applies changes under the service prefix to the cache, starting at rev.
func (d *EtcdDirectory) watch(serviceName string, rev int64) {
	wch := d.client.Watch(d.ctx, d.servicePrefix(serviceName), clientv3.WithPrefix(), clientv3.WithRev(rev))
	for resp := range wch {
		if err := resp.Err(); err != nil {
			d.logger.Warn("watch failed, dropping cache", zap.String("service", serviceName), zap.Error(err))
			break
		}

		d.mu.Lock()
		cache := d.caches[serviceName]
		for _, ev := range resp.Events {
			key := string(ev.Kv.Key)
			switch ev.Type {
			case mvccpb.PUT:
				var inst ServiceInstance
				if err := json.Unmarshal(ev.Kv.Value, &inst); err != nil {
					continue
				}
				cache[key] = inst
			case mvccpb.DELETE:
				delete(cache, key)
			}
		}
		d.mu.Unlock()
	}

	// Next Resolve reloads and restarts the watch.
	d.mu.Lock()
	delete(d.caches, serviceName)
	d.mu.Unlock()
}

// Close stops lease renewal and watches and closes the etcd client.
func (d *EtcdDirectory) Close() error {
	d.cancel()
	return d.client.Close()
}

func sortedInstances(m map[string]ServiceInstance) []ServiceInstance {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ServiceInstance, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
