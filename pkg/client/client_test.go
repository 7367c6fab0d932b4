package client

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanTFTP/pkg/packet"
	"github.com/rescp17/lanTFTP/pkg/server"
	"github.com/rescp17/lanTFTP/pkg/storage"
	"github.com/rescp17/lanTFTP/pkg/transfer"
)

func transferConfig() *transfer.Config {
	cfg := transfer.DefaultConfig()
	cfg.Timeout = 500 * time.Millisecond
	cfg.Retry.MaxRetries = 2
	return cfg
}

func startServer(t *testing.T, backend storage.Backend) string {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	cfg.Transfer = transferConfig()

	srv, err := server.New(cfg, server.WithBackend(backend))
	require.NoError(t, err)
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		conn.Close()
	})
	return conn.LocalAddr().String()
}

func newClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	c, err := New(&Config{Server: addr, Transfer: transferConfig()}, opts...)
	require.NoError(t, err)
	return c
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

// Scenario A: a small file arrives as one short block.
func TestDownloadSmallFile(t *testing.T) {
	mem := storage.NewMemory()
	mem.Put("hello.txt", []byte("Hello, TFTP!\n"))
	c := newClient(t, startServer(t, mem))

	local := filepath.Join(t.TempDir(), "hello.txt")
	st, err := c.Download(context.Background(), "hello.txt", local)
	require.NoError(t, err)

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "Hello, TFTP!\n", string(got))
	assert.Equal(t, 1, st.Blocks)
	assert.Equal(t, transfer.StateDone, st.State)
}

func TestGetBlockCounts(t *testing.T) {
	tests := []struct {
		size   int
		blocks int
	}{
		{0, 1},
		{1, 1},
		{512, 2},
		{513, 2},
		{1024, 3},
		{5000, 10},
	}

	mem := storage.NewMemory()
	c := newClient(t, startServer(t, mem))

	for _, tt := range tests {
		name := fmt.Sprintf("file-%d.bin", tt.size)
		content := pattern(tt.size)
		mem.Put(name, content)

		var buf bytes.Buffer
		st, err := c.Get(context.Background(), name, &buf)
		require.NoError(t, err, "size %d", tt.size)
		assert.True(t, bytes.Equal(content, buf.Bytes()), "size %d", tt.size)
		assert.Equal(t, tt.blocks, st.Blocks, "size %d", tt.size)
	}
}

// Scenario B: an upload lands on the server under its base name.
func TestUpload(t *testing.T) {
	mem := storage.NewMemory()
	c := newClient(t, startServer(t, mem))

	local := filepath.Join(t.TempDir(), "report.pdf")
	content := pattern(3*packet.BlockSize + 10)
	require.NoError(t, os.WriteFile(local, content, 0o644))

	var seen []transfer.Progress
	c.progress = func(p transfer.Progress) { seen = append(seen, p) }

	st, err := c.Upload(context.Background(), local, "")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Blocks)

	require.Eventually(t, func() bool {
		got, ok := mem.Get("report.pdf")
		return ok && bytes.Equal(got, content)
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, seen, 4)
	assert.Equal(t, int64(len(content)), seen[3].Total)
	assert.Equal(t, int64(len(content)), seen[3].Bytes)
}

// Scenario C: a missing remote file is reported and nothing is written locally.
func TestDownloadMissingFile(t *testing.T) {
	c := newClient(t, startServer(t, storage.NewMemory()))

	dir := t.TempDir()
	_, err := c.Download(context.Background(), "nope.txt", filepath.Join(dir, "nope.txt"))

	var pe *transfer.PeerError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, packet.ErrFileNotFound, pe.Code)
	assert.Equal(t, "File not found", pe.Message)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadRejectedWhileFileIsBusy(t *testing.T) {
	mem := storage.NewMemory()
	addr := startServer(t, mem)

	raw, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer raw.Close()
	serverAddr, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)
	_, err = raw.WriteTo(packet.MustEncode(packet.WriteRequest{Filename: "busy.txt", Mode: "octet"}), serverAddr)
	require.NoError(t, err)
	buf := make([]byte, packet.MaxDatagramSize)
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = raw.ReadFrom(buf)
	require.NoError(t, err)

	c := newClient(t, addr)
	_, err = c.Put(context.Background(), "busy.txt", bytes.NewReader([]byte("x")), 1)
	var pe *transfer.PeerError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "File is busy", pe.Message)
}

func TestUploadMissingLocalFile(t *testing.T) {
	c := newClient(t, "127.0.0.1:6969")
	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "absent"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNoServerTimesOut(t *testing.T) {
	// Nobody reads from this socket.
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	cfg := &Config{Server: silent.LocalAddr().String(), Transfer: transfer.StrictConfig()}
	cfg.Transfer.Timeout = 100 * time.Millisecond
	c, err := New(cfg)
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "out.bin")
	_, err = c.Download(context.Background(), "x.bin", local)
	require.ErrorIs(t, err, transfer.ErrTimeout)
	assert.NoFileExists(t, local)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, 5*time.Second, DefaultConfig().Transfer.Timeout)

	assert.Error(t, (&Config{Server: "", Transfer: transfer.DefaultConfig()}).Validate())
	assert.Error(t, (&Config{Server: "localhost", Transfer: transfer.DefaultConfig()}).Validate())
	assert.Error(t, (&Config{Server: "localhost:69"}).Validate())

	_, err := New(&Config{Server: "nohost"})
	assert.Error(t, err)
}
