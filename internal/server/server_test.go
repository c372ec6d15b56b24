package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unifydb/kave/internal/store"
	"github.com/unifydb/kave/internal/testutil"
	"github.com/unifydb/kave/internal/transport"
)

// freeAddr asks the kernel for an unused loopback port, the usual Go testing
// idiom for picking an address a server can bind a moment later.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServer_ServeAcceptsAndEchoes(t *testing.T) {
	dir := t.TempDir()
	ca := testutil.NewCA(t)
	serverCert, serverKey := ca.IssueLeaf(t, dir, "server", "localhost")
	clientCert, clientKey := ca.IssueLeaf(t, dir, "client", "kave-client")
	caFile := ca.WriteBundle(t, dir)

	tlsCfg, err := transport.BuildServerTLSConfig(transport.CertConfig{
		CertFile: serverCert,
		KeyFile:  serverKey,
		ClientCA: caFile,
	})
	require.NoError(t, err)

	st, err := store.New(store.DefaultOptions())
	require.NoError(t, err)

	addr := freeAddr(t)
	srv := New(addr, tlsCfg, st, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(context.Background())
	}()

	require.Eventually(t, func() bool {
		conn, dialErr := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if dialErr != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "server never bound its listener")

	clientPair, err := tls.LoadX509KeyPair(clientCert, clientKey)
	require.NoError(t, err)

	caPEM, err := os.ReadFile(caFile)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{clientPair},
		RootCAs:      pool,
		ServerName:   "localhost",
	})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ECHO:5:hello\n"))
	require.NoError(t, err)

	want := "5:hello\n"
	got := make([]byte, len(want))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, want, string(got))

	require.NoError(t, srv.Stop())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServer_StopBeforeServeIsSafe(t *testing.T) {
	st, err := store.New(store.DefaultOptions())
	require.NoError(t, err)

	srv := New(freeAddr(t), nil, st, zap.NewNop())
	require.NoError(t, srv.Stop())
}
