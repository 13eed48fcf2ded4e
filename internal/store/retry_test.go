package store

import (
	"context"
	"errors"
	"testing"
)

func TestIsBusyError(t *testing.T) {
	if isBusyError(nil) {
		t.Error("nil is not busy")
	}
	if isBusyError(errors.New("UNIQUE constraint failed")) {
		t.Error("constraint violation is not busy")
	}
	if !isBusyError(errors.New("SQLITE_BUSY: database is locked")) {
		t.Error("Expected SQLITE_BUSY detected")
	}
	if !isBusyError(errors.New("database is locked (5)")) {
		t.Error("Expected locked error detected")
	}
}

func TestWithBusyRetry_EventualSuccess(t *testing.T) {
	attempts := 0
	err := withBusyRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithBusyRetry_NonBusyReturnsImmediately(t *testing.T) {
	attempts := 0
	want := errors.New("UNIQUE constraint failed")
	err := withBusyRetry(context.Background(), func() error {
		attempts++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("Expected original error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}
