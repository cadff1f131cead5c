package tor

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func testOnionAddress(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

func TestIsValidV3Address(t *testing.T) {
	t.Parallel()

	valid := testOnionAddress(t)
	corrupted := []byte(valid)
	if corrupted[0] == 'a' {
		corrupted[0] = 'b'
	} else {
		corrupted[0] = 'a'
	}

	tests := []struct {
		name string
		host string
		want bool
	}{
		{name: "generated", host: valid, want: true},
		{name: "uppercase", host: strings.ToUpper(valid), want: true},
		{name: "subdomain", host: "docs." + valid, want: true},
		{name: "trailing dot", host: valid + ".", want: true},
		{name: "bad checksum", host: string(corrupted), want: false},
		{name: "v2 length", host: "abcdefghijklmnop.onion", want: false},
		{name: "clearnet", host: "example.org", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidV3Address(tt.host); got != tt.want {
				t.Errorf("IsValidV3Address(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestIsOnionHost(t *testing.T) {
	t.Parallel()

	if !IsOnionHost("abc.ONION") {
		t.Error("IsOnionHost should be case-insensitive")
	}
	if IsOnionHost("onion.example.org") {
		t.Error("IsOnionHost matched a clearnet host")
	}
}

func TestAddressFromPublicKeyRejectsShortKey(t *testing.T) {
	t.Parallel()

	if _, err := AddressFromPublicKey(make([]byte, 16)); err == nil {
		t.Error("AddressFromPublicKey() accepted a 16 byte key")
	}
}

func TestValidateProxyAddress(t *testing.T) {
	t.Parallel()

	for _, good := range []string{"127.0.0.1:9050", "localhost:9150", "[::1]:9050"} {
		if err := ValidateProxyAddress(good); err != nil {
			t.Errorf("ValidateProxyAddress(%q) error = %v", good, err)
		}
	}
	for _, bad := range []string{"", "127.0.0.1", ":9050", "host:0", "host:70000", "host:abc"} {
		if err := ValidateProxyAddress(bad); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("ValidateProxyAddress(%q) error = %v, want ErrInvalidProxyAddress", bad, err)
		}
	}
}

// fakeProxy answers the SOCKS5 greeting with reply.
func fakeProxy(t *testing.T, reply []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 3)
				if _, err := io.ReadFull(c, buf); err != nil {
					return
				}
				_, _ = c.Write(reply) //nolint:errcheck // test server
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestCheckProxy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("socks5", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(ctx, fakeProxy(t, []byte{0x05, 0x00})); err != nil {
			t.Errorf("CheckProxy() error = %v", err)
		}
	})

	t.Run("requires auth", func(t *testing.T) {
		t.Parallel()
		err := CheckProxy(ctx, fakeProxy(t, []byte{0x05, 0xFF}))
		if !errors.Is(err, ErrNotSOCKS5) {
			t.Errorf("CheckProxy() error = %v, want ErrNotSOCKS5", err)
		}
	})

	t.Run("http server", func(t *testing.T) {
		t.Parallel()
		err := CheckProxy(ctx, fakeProxy(t, []byte("HTTP/1.1 400 Bad Request\r\n")))
		if !errors.Is(err, ErrNotSOCKS5) {
			t.Errorf("CheckProxy() error = %v, want ErrNotSOCKS5", err)
		}
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		ln.Close()
		if err := CheckProxy(ctx, addr); !errors.Is(err, ErrProxyUnreachable) {
			t.Errorf("CheckProxy() error = %v, want ErrProxyUnreachable", err)
		}
	})
}

func TestDaemonNotStarted(t *testing.T) {
	t.Parallel()

	d := NewDaemon(WithStartupTimeout(5 * time.Second))
	if d.startupTimeout != 5*time.Second {
		t.Errorf("startupTimeout = %v, want 5s", d.startupTimeout)
	}
	if d.Running() {
		t.Error("new daemon reports running")
	}
	if _, err := d.SocksAddr(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("SocksAddr() error = %v, want ErrNotRunning", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop() on unstarted daemon error = %v", err)
	}
}
