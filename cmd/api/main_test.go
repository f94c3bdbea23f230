package main

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunReturnsConfigurationError(t *testing.T) {
	t.Setenv("TRANSCRIBER", "whisper")

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to load configuration") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	defer ln.Close()

	t.Setenv("PORT", ln.Addr().String())
	t.Setenv("TRANSCRIBER", "volcengine")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("TURN_LOG_PATH", filepath.Join(t.TempDir(), "turns.db"))

	err = run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server error") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestCloseAllRunsInReverseOrder(t *testing.T) {
	var order []string
	closers := []func() error{
		func() error { order = append(order, "store"); return nil },
		func() error { order = append(order, "speech"); return errors.New("speech close failed") },
		func() error { order = append(order, "turnlog"); return errors.New("database is locked") },
	}

	err := closeAll(closers)
	if strings.Join(order, ",") != "turnlog,speech,store" {
		t.Fatalf("unexpected close order %v", order)
	}
	if err == nil || !strings.Contains(err.Error(), "speech close failed") || !strings.Contains(err.Error(), "database is locked") {
		t.Fatalf("expected both close errors, got %v", err)
	}
}
