// Package probe performs a single TCP connect attempt against one port,
// classifies the result and reads the service banner from open ports.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/hakim/portprobe/internal/models"
	"github.com/hakim/portprobe/internal/services"
	xunicode "golang.org/x/text/encoding/unicode"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultBannerBytes = 1024
)

// Options configures a Prober.
type Options struct {
	ConnectTimeout time.Duration
	// BannerTimeout bounds the banner read; zero means ConnectTimeout.
	BannerTimeout time.Duration
	// BannerBytes is the read buffer size, never less than DefaultBannerBytes.
	BannerBytes int
	// TimeoutAsError reports connect timeouts as ERROR instead of CLOSED.
	TimeoutAsError bool
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober runs single-port probes. It holds no mutable state and is safe for
// concurrent use.
type Prober struct {
	opts Options
	dial DialFunc
}

// New creates a Prober using a plain net.Dialer.
func New(opts Options) *Prober {
	var d net.Dialer
	return NewWithDialer(opts, d.DialContext)
}

// NewWithDialer creates a Prober with a custom dial function.
func NewWithDialer(opts Options, dial DialFunc) *Prober {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultTimeout
	}
	if opts.BannerTimeout <= 0 {
		opts.BannerTimeout = opts.ConnectTimeout
	}
	if opts.BannerBytes < DefaultBannerBytes {
		opts.BannerBytes = DefaultBannerBytes
	}
	return &Prober{opts: opts, dial: dial}
}

// Probe connects to host:port once and returns the classified outcome.
//
// A non-nil error is returned only when ctx was cancelled before the probe
// finished; the port is then abandoned and the outcome must be discarded.
func (p *Prober) Probe(ctx context.Context, host string, port int) (models.ProbeOutcome, error) {
	out := models.ProbeOutcome{
		Port:    port,
		Service: services.Lookup(port),
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	start := time.Now()
	conn, err := p.dial(dialCtx, "tcp", addr)
	out.LatencyMillis = time.Since(start).Milliseconds()
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		p.classifyDialError(&out, err)
		return out, nil
	}
	defer conn.Close()

	out.Status = models.ProbeOpen
	banner, err := p.readBanner(ctx, conn)
	if err != nil {
		return out, err
	}
	out.Banner = banner
	return out, nil
}

func (p *Prober) classifyDialError(out *models.ProbeOutcome, err error) {
	switch {
	case isRefused(err):
		out.Status = models.ProbeClosed
	case isTimeout(err):
		if p.opts.TimeoutAsError {
			out.Status = models.ProbeError
			out.Error = fmt.Sprintf("connect timeout after %s", p.opts.ConnectTimeout)
			return
		}
		out.Status = models.ProbeClosed
	default:
		out.Status = models.ProbeError
		out.Error = describe(err)
	}
}

// readBanner performs one bounded read. Cancellation of ctx closes the
// connection so the read returns promptly.
func (p *Prober) readBanner(ctx context.Context, conn net.Conn) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(p.opts.BannerTimeout)); err != nil {
		return models.BannerFailed, nil
	}

	buf := make([]byte, p.opts.BannerBytes)
	n, err := conn.Read(buf)
	if n > 0 {
		if text := decodeBanner(buf[:n]); text != "" {
			return text, nil
		}
		return models.BannerNone, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err == nil || errors.Is(err, io.EOF) || isTimeout(err) {
		return models.BannerNone, nil
	}
	return models.BannerFailed, nil
}

// decodeBanner turns raw bytes into trimmed text, replacing invalid UTF-8.
func decodeBanner(raw []byte) string {
	decoded, err := xunicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(decoded) {
		return strings.TrimSpace(strings.ToValidUTF8(string(raw), string(utf8.RuneError)))
	}
	return strings.TrimSpace(string(decoded))
}

func isRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	// some platforms only surface the refusal in the message
	return strings.Contains(err.Error(), "connection refused")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// describe renders a connect failure without the repetitive "dial tcp" prefix.
func describe(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("cannot resolve %s: %s", dnsErr.Name, dnsErr.Err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		var sysErr *os.SyscallError
		if errors.As(opErr.Err, &sysErr) {
			return sysErr.Err.Error()
		}
		return opErr.Err.Error()
	}
	return err.Error()
}
