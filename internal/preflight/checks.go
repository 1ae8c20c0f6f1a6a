package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"seriallinker/internal/config"
)

const dialTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary reports whether command resolves on PATH (or as a path).
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Passed: false, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Passed: false, Detail: fmt.Sprintf("binary %q not found", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s free, need %s)", path, humanBytes(free), humanBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s free)", path, humanBytes(free))}
}

// CheckGPIOInputs verifies every configured input pin exposes a readable value file.
func CheckGPIOInputs(s config.Sensors) Result {
	const name = "GPIO inputs"
	pins := []struct {
		input string
		pin   int
	}{
		{"board", s.BoardPin},
		{"start", s.StartPin},
		{"enable", s.EnablePin},
		{"curtain", s.CurtainPin},
	}
	var missing []string
	for _, p := range pins {
		path := filepath.Join(s.GPIORoot, "gpio"+strconv.Itoa(p.pin), "value")
		if err := unix.Access(path, unix.R_OK); err != nil {
			missing = append(missing, fmt.Sprintf("%s=gpio%d", p.input, p.pin))
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("unreadable: %s (export the pins under %s)", strings.Join(missing, ", "), s.GPIORoot)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("4 pins readable under %s", s.GPIORoot)}
}

// CheckEndpoint dials the host behind a URL or host:port. Only reachability
// is checked; credentials are exercised by the first real request.
func CheckEndpoint(ctx context.Context, name, raw string) Result {
	addr, err := dialAddress(raw)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return CheckTCP(ctx, name, addr)
}

// CheckTCP verifies a TCP connection can be opened to addr.
func CheckTCP(ctx context.Context, name, addr string) Result {
	if strings.TrimSpace(addr) == "" {
		return Result{Name: name, Detail: "missing address"}
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%s)", addr, summarizeDialError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", addr)}
}

func dialAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing url")
	}
	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err == nil {
			return raw, nil
		}
		return "", fmt.Errorf("%q is neither a URL nor host:port", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %v", err)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "ssl", "tls", "mqtts":
			port = "443"
			if u.Scheme != "https" {
				port = "8883"
			}
		case "tcp", "mqtt":
			port = "1883"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
