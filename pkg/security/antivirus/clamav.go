package antivirus

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

const (
	defaultClamAVTimeout = 60 * time.Second
	pingTimeout          = 5 * time.Second
	// clamd rejects chunks above StreamMaxLength; stay well below it.
	streamChunkSize = 64 * 1024
)

// ClamAVScanner connects to clamd daemon for malware scanning
type ClamAVScanner struct {
	address string        // TCP address (host:port) or Unix socket path
	timeout time.Duration // Upper bound for one scan, connect included
}

var _ Scanner = (*ClamAVScanner)(nil)

// NewClamAVScanner creates a ClamAV scanner
// address: TCP "localhost:3310" or Unix socket "/var/run/clamav/clamd.sock"
// timeout: non-positive values fall back to 60 seconds
func NewClamAVScanner(address string, timeout time.Duration) *ClamAVScanner {
	if timeout <= 0 {
		timeout = defaultClamAVTimeout
	}
	return &ClamAVScanner{
		address: address,
		timeout: timeout,
	}
}

func (c *ClamAVScanner) Name() string {
	return "clamav"
}

func (c *ClamAVScanner) network() string {
	if strings.HasPrefix(c.address, "/") {
		return "unix"
	}
	return "tcp"
}

// Available checks if ClamAV daemon answers PING
func (c *ClamAVScanner) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, c.network(), c.address)
	if err != nil {
		return false
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte("zPING\x00")); err != nil {
		return false
	}

	reply, err := bufio.NewReader(conn).ReadString(0)
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return strings.HasPrefix(strings.TrimRight(reply, "\x00\n"), "PONG")
}

// Scan streams the file at path to clamd using the INSTREAM command.
func (c *ClamAVScanner) Scan(ctx context.Context, path string) (Result, error) {
	result := Result{Engine: c.Name()}

	file, err := os.Open(path)
	if err != nil {
		return result, newEngineError(c.Name(), "failed to open file", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, c.network(), c.address)
	if err != nil {
		return result, c.classify(ctx, "failed to connect to clamd", err)
	}
	defer conn.Close()

	// Closing the connection unblocks any pending read or write on cancel.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return result, c.classify(ctx, "failed to send command", err)
	}

	if err := streamChunks(conn, file); err != nil {
		return result, c.classify(ctx, "failed to stream file data", err)
	}

	reply, err := bufio.NewReader(conn).ReadString(0)
	if err != nil && !errors.Is(err, io.EOF) {
		return result, c.classify(ctx, "failed to read response", err)
	}

	signatures, scanErr := parseReply(reply)
	if scanErr != "" {
		return result, newEngineError(c.Name(), "scan error: "+scanErr, nil)
	}
	result.Signatures = signatures
	result.Infected = len(signatures) > 0
	return result, nil
}

// streamChunks writes r as size-prefixed chunks followed by the zero-length terminator.
func streamChunks(w io.Writer, r io.Reader) error {
	buf := make([]byte, streamChunkSize)
	var size [4]byte
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			// Size prefix is network byte order (big-endian uint32)
			binary.BigEndian.PutUint32(size[:], uint32(n))
			if _, err := w.Write(size[:]); err != nil {
				return err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read file: %w", readErr)
		}
	}
	_, err := w.Write([]byte{0, 0, 0, 0})
	return err
}

// parseReply extracts signature names from a clamd reply.
// Clean: "stream: OK"
// Infected: "stream: Eicar-Signature FOUND" (one line per match with ALLMATCHSCAN)
// Error: "INSTREAM size limit exceeded. ERROR"
func parseReply(reply string) (signatures []string, scanErr string) {
	signatures = []string{}
	lines := strings.FieldsFunc(reply, func(r rune) bool { return r == '\n' || r == 0 })
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasSuffix(line, "FOUND"):
			name := strings.TrimSuffix(line, "FOUND")
			if idx := strings.Index(name, ":"); idx >= 0 {
				name = name[idx+1:]
			}
			name = strings.TrimSpace(name)
			if name != "" {
				signatures = append(signatures, name)
			}
		case strings.HasSuffix(line, "ERROR"):
			return nil, line
		}
	}
	if len(lines) == 0 {
		return nil, "empty response"
	}
	return signatures, ""
}

// classify maps transport failures onto the package error codes.
func (c *ClamAVScanner) classify(ctx context.Context, msg string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newTimeoutError(c.Name(), msg, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newTimeoutError(c.Name(), msg, err)
	}
	return newUnavailableError(c.Name(), msg, err)
}
