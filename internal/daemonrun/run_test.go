package daemonrun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"seriallinker/internal/ipc"
	"seriallinker/internal/station"
	"seriallinker/internal/testsupport"
)

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "linker-1.log")
	second := filepath.Join(dir, "linker-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "linker.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "linker-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
	if err := ensureCurrentLogPointer("", second); err != nil {
		t.Fatalf("empty dir should be a no-op: %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linker.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file %q", data)
	}
}

func TestRunSimulatedStation(t *testing.T) {
	mes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(mes.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithMESBaseURL(mes.URL))
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{LogLevel: "error"})
	}()

	var client *ipc.Client
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := ipc.Dial(cfg.Paths.SocketPath)
		if err == nil {
			client = c
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("daemon socket never appeared: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !resp.Status.Running || resp.Status.Station.State != station.StateLoggedOut {
		t.Fatalf("unexpected status %+v", resp.Status)
	}
	if !strings.HasPrefix(filepath.Base(resp.Status.LogPath), "linker-") {
		t.Fatalf("unexpected log path %q", resp.Status.LogPath)
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}
	_ = client.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	if _, err := os.Stat(cfg.Paths.SocketPath); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, got %v", err)
	}
}
