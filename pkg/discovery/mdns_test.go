package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	results []DiscoveryResult
}

func (f *fakeAdapter) Announce(ctx context.Context, _ ServiceInfo) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAdapter) Discover(ctx context.Context, _ string) <-chan DiscoveryResult {
	out := make(chan DiscoveryResult, len(f.results))
	for _, r := range f.results {
		out <- r
	}
	close(out)
	return out
}

func TestFirst(t *testing.T) {
	svc := ServiceInfo{Name: "brave-otter", Type: DefaultServiceType, Domain: DefaultDomain, Addr: net.ParseIP("192.168.1.20"), Port: 6969}
	a := &fakeAdapter{results: []DiscoveryResult{{Services: nil}, {Services: []ServiceInfo{svc}}}}

	got, err := First(context.Background(), a, ServiceName(DefaultServiceType, DefaultDomain))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:6969", got.HostPort())
}

func TestFirstNothingFound(t *testing.T) {
	_, err := First(context.Background(), &fakeAdapter{}, "_tftp._udp.local.")
	assert.Error(t, err)

	_, err = First(context.Background(), &fakeAdapter{results: []DiscoveryResult{{Error: errors.New("no multicast")}}}, "_tftp._udp.local.")
	assert.EqualError(t, err, "no multicast")
}

func TestCollectKeepsLastSnapshot(t *testing.T) {
	a := &fakeAdapter{results: []DiscoveryResult{
		{Services: []ServiceInfo{{Name: "a"}}},
		{Services: []ServiceInfo{{Name: "a"}, {Name: "b"}}},
	}}
	got, err := Collect(context.Background(), a, "_tftp._udp.local.")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "_tftp._udp.local.", ServiceName(DefaultServiceType, DefaultDomain))
	assert.Equal(t, "box.local:69", ServiceInfo{Name: "box", Domain: "local", Port: 69}.HostPort())
}

func TestMDNSAnnounceStop(t *testing.T) {
	// Skip mDNS tests in CI environment as they may be unreliable
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	mdnsAdapter := &MDNSAdapter{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mdnsAdapter.Announce(ctx, ServiceInfo{
			Name:   "test-instance",
			Type:   DefaultServiceType,
			Domain: DefaultDomain,
			Port:   6969,
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service announcement did not stop in time")
	}
}

func TestMDNSAdapter_Discover(t *testing.T) {
	// Skip mDNS tests in CI environment as they may be unreliable
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mdnsAdapter := &MDNSAdapter{}

	serviceInfo := ServiceInfo{
		Name:   "test-instance",
		Type:   DefaultServiceType,
		Domain: DefaultDomain,
		Port:   6969,
	}
	go func() {
		_ = mdnsAdapter.Announce(ctx, serviceInfo)
	}()
	time.Sleep(300 * time.Millisecond)

	queryCtx, queryCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer queryCancel()

	found, err := First(queryCtx, mdnsAdapter, ServiceName(serviceInfo.Type, serviceInfo.Domain))
	require.NoError(t, err)
	assert.Equal(t, serviceInfo.Name, found.Name)
	assert.Equal(t, serviceInfo.Type, found.Type)
	assert.Equal(t, serviceInfo.Port, found.Port)
	assert.Equal(t, "octet", found.Text["mode"])
}
