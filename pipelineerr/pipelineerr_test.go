package pipelineerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	retryable := SystemRetryable(CodeNpmTarballError, errors.New("object store timed out"))
	if !IsRetryable(retryable) {
		t.Errorf("expected SystemRetryable to be retryable")
	}
	if IsRetryable(User(CodeInvalidPath, "bad path")) {
		t.Errorf("expected user error not to be retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Errorf("expected a non-pipeline error not to be retryable")
	}
}

func TestIsUserFatal(t *testing.T) {
	if !IsUserFatal(User(CodeConfigFileNameMismatch, "name mismatch")) {
		t.Errorf("expected User() to be user-fatal")
	}
	if IsUserFatal(SystemFatal(CodeNpmTarballError, errors.New("disk full"))) {
		t.Errorf("expected SystemFatal not to be user-fatal")
	}
}

func TestUnwrapThroughFmtErrorf(t *testing.T) {
	base := User(CodeGraphError, "cycle detected")
	wrapped := fmt.Errorf("building graph for /mod.ts: %w", base)
	if !IsUserFatal(wrapped) {
		t.Errorf("expected wrapped pipeline error to still be classified as user-fatal")
	}
}

func TestErrorMessageIncludesLocation(t *testing.T) {
	err := UserAt(CodeGlobalTypeAugmentation, "declare global {} is banned", "file:///mod.ts", 1, 1)
	want := "globalTypeAugmentation: declare global {} is banned (file:///mod.ts:1:1)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
