package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// keyspace prefix for all instance entries:
//
//	Key:   /ribbon/{serviceName}/{addr}
//	Value: JSON-encoded ServiceInstance
const etcdPrefix = "/ribbon/"

// EtcdDiscovery implements Discovery on etcd v3.
//
// Registration uses TTL leases with background keepalive: if a server dies,
// its lease expires and the entry disappears on its own, so clients never
// keep routing to a ghost instance.
type EtcdDiscovery struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdDiscovery connects to the given etcd endpoints.
func NewEtcdDiscovery(endpoints []string) (*EtcdDiscovery, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdDiscovery{client: c}, nil
}

// Register writes the instance under a fresh TTL lease and starts keepalive
// renewal for it.
//
// The lease ID stays local to this call. Storing it on the struct would race
// when multiple servers share one EtcdDiscovery.
func (d *EtcdDiscovery) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := d.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = d.client.Put(ctx, etcdPrefix+serviceName+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain keepalive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister deletes the instance entry. Called during graceful shutdown.
func (d *EtcdDiscovery) Deregister(serviceName string, addr string) error {
	_, err := d.client.Delete(context.TODO(), etcdPrefix+serviceName+"/"+addr)
	return err
}

// Instances lists every instance currently registered under the service.
func (d *EtcdDiscovery) Instances(serviceName string) ([]ServiceInstance, error) {
	resp, err := d.client.Get(context.TODO(), etcdPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch follows the service prefix and re-lists instances on every change.
// Re-listing is simpler than replaying individual watch events and the list
// is small.
func (d *EtcdDiscovery) Watch(serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		watchChan := d.client.Watch(context.TODO(), etcdPrefix+serviceName+"/", clientv3.WithPrefix())
		for range watchChan {
			instances, err := d.Instances(serviceName)
			if err != nil {
				continue
			}
			ch <- instances
		}
	}()
	return ch
}

// Close releases the underlying etcd client.
func (d *EtcdDiscovery) Close() error {
	return d.client.Close()
}
