package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hakim/portprobe/internal/models"
)

// listen starts a loopback listener whose accepted connections are handled by
// fn in their own goroutine.
func listen(t *testing.T, fn func(net.Conn)) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go fn(c)
		}
	}()
	return l.Addr().(*net.TCPAddr).Port
}

// closedPort returns a loopback port that had a listener a moment ago.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	time.Sleep(20 * time.Millisecond)
	return port
}

func TestProbe_OpenWithBanner(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		_, _ = c.Write([]byte("  SSH-2.0-OpenSSH_9.6\r\n"))
		time.Sleep(200 * time.Millisecond)
	})

	p := New(Options{ConnectTimeout: time.Second})
	out, err := p.Probe(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeOpen {
		t.Fatalf("status = %s, want OPEN (err=%s)", out.Status, out.Error)
	}
	if out.Banner != "SSH-2.0-OpenSSH_9.6" {
		t.Fatalf("banner = %q", out.Banner)
	}
	if out.Error != "" {
		t.Fatalf("open port should carry no error, got %q", out.Error)
	}
}

func TestProbe_OpenSilent(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		time.Sleep(time.Second)
	})

	p := New(Options{ConnectTimeout: time.Second, BannerTimeout: 100 * time.Millisecond})
	start := time.Now()
	out, err := p.Probe(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeOpen || out.Banner != models.BannerNone {
		t.Fatalf("got %s/%q, want OPEN/%q", out.Status, out.Banner, models.BannerNone)
	}
	if time.Since(start) > 800*time.Millisecond {
		t.Fatalf("banner read not bounded by banner timeout: %s", time.Since(start))
	}
}

func TestProbe_OpenThenEOF(t *testing.T) {
	port := listen(t, func(c net.Conn) { _ = c.Close() })

	p := New(Options{ConnectTimeout: time.Second})
	out, err := p.Probe(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeOpen {
		t.Fatalf("status = %s, want OPEN", out.Status)
	}
	if out.Banner != models.BannerNone && out.Banner != models.BannerFailed {
		t.Fatalf("banner = %q", out.Banner)
	}
}

func TestProbe_WhitespaceOnlyBanner(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		_, _ = c.Write([]byte(" \r\n\t"))
		time.Sleep(200 * time.Millisecond)
	})

	out, err := New(Options{ConnectTimeout: time.Second}).Probe(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Banner != models.BannerNone {
		t.Fatalf("banner = %q, want %q", out.Banner, models.BannerNone)
	}
}

func TestProbe_InvalidUTF8Replaced(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		_, _ = c.Write([]byte{'o', 'k', 0xff, 0xfe, '!', '\n'})
		time.Sleep(200 * time.Millisecond)
	})

	out, err := New(Options{ConnectTimeout: time.Second}).Probe(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !strings.HasPrefix(out.Banner, "ok") || !strings.HasSuffix(out.Banner, "!") {
		t.Fatalf("banner = %q", out.Banner)
	}
	if !strings.ContainsRune(out.Banner, '�') {
		t.Fatalf("invalid bytes should be replaced, got %q", out.Banner)
	}
}

func TestProbe_Closed(t *testing.T) {
	port := closedPort(t)

	out, err := New(Options{ConnectTimeout: time.Second}).Probe(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeClosed {
		t.Fatalf("status = %s, want CLOSED (err=%s)", out.Status, out.Error)
	}
	if out.Banner != "" || out.Error != "" {
		t.Fatalf("closed port should carry no banner or error: %+v", out)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func failingDialer(err error) DialFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: err}
	}
}

func TestProbe_TimeoutPolicy(t *testing.T) {
	closed := NewWithDialer(Options{ConnectTimeout: time.Second}, failingDialer(timeoutErr{}))
	out, err := closed.Probe(context.Background(), "10.0.0.1", 22)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeClosed || out.Service != "SSH" {
		t.Fatalf("default policy: got %s/%s, want CLOSED/SSH", out.Status, out.Service)
	}

	strict := NewWithDialer(Options{ConnectTimeout: time.Second, TimeoutAsError: true}, failingDialer(timeoutErr{}))
	out, err = strict.Probe(context.Background(), "10.0.0.1", 22)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeError || !strings.Contains(out.Error, "timeout") {
		t.Fatalf("strict policy: got %s/%q, want ERROR with timeout detail", out.Status, out.Error)
	}
}

func TestProbe_ConnectError(t *testing.T) {
	p := NewWithDialer(Options{}, failingDialer(errors.New("network is unreachable")))
	out, err := p.Probe(context.Background(), "192.0.2.1", 80)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeError {
		t.Fatalf("status = %s, want ERROR", out.Status)
	}
	if out.Error != "network is unreachable" {
		t.Fatalf("error detail = %q", out.Error)
	}
	if out.Banner != "" {
		t.Fatalf("error outcome should carry no banner")
	}
}

func TestProbe_DNSError(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}
	p := NewWithDialer(Options{}, failingDialer(dnsErr))
	out, err := p.Probe(context.Background(), "nope.invalid", 80)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if out.Status != models.ProbeError || !strings.Contains(out.Error, "nope.invalid") {
		t.Fatalf("got %s/%q", out.Status, out.Error)
	}
}

func TestProbe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Probe(ctx, "127.0.0.1", 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestProbe_CancelledDuringBannerRead(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		time.Sleep(2 * time.Second)
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := New(Options{ConnectTimeout: 5 * time.Second}).Probe(ctx, "127.0.0.1", port)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancellation did not interrupt banner read")
	}
}

func TestNewWithDialer_Defaults(t *testing.T) {
	p := NewWithDialer(Options{BannerBytes: 16}, nil)
	if p.opts.ConnectTimeout != DefaultTimeout || p.opts.BannerTimeout != DefaultTimeout {
		t.Fatalf("timeouts not defaulted: %+v", p.opts)
	}
	if p.opts.BannerBytes != DefaultBannerBytes {
		t.Fatalf("banner buffer = %d, want %d", p.opts.BannerBytes, DefaultBannerBytes)
	}
}
