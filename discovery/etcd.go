// Package discovery publishes arbiter addresses in etcd so senders can find
// an arbiter by id instead of by host and port.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const prefix = "/slotchan/arbiters/"

var ErrNotFound = errors.New("discovery: arbiter not registered")

func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// SplitEndpoints parses a comma separated endpoint list, dropping blanks.
func SplitEndpoints(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func Key(id string) string { return prefix + id }

// RegisterArbiter stores addr under the arbiter's key with a lease of ttl
// seconds and keeps the lease alive until cancel is called.
func RegisterArbiter(ctx context.Context, cli *clientv3.Client, id, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, Key(id), addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("put %s: %w", Key(id), err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// LookupArbiter returns the address registered for id.
func LookupArbiter(ctx context.Context, cli *clientv3.Client, id string) (string, error) {
	resp, err := cli.Get(ctx, Key(id))
	if err != nil {
		return "", fmt.Errorf("get %s: %w", Key(id), err)
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return string(resp.Kvs[0].Value), nil
}

// AdvertiseAddr fills in a host for listen addresses like ":5000" so the
// registered value is dialable from other machines.
func AdvertiseAddr(listen, host string) string {
	h, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host != "" {
		h = host
	}
	if h == "" || h == "::" || h == "0.0.0.0" {
		h = "127.0.0.1"
	}
	return net.JoinHostPort(h, port)
}
