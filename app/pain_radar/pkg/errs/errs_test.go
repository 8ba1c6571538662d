package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classification", Classification(base), KindClassification},
		{"fetch", SourceFetch(base), KindSourceFetch},
		{"persistence", Persistence(base), KindPersistence},
		{"timeout", Timeout(base), KindTimeout},
		{"deadline wrapped as fetch", SourceFetch(fmt.Errorf("reddit: %w", context.DeadlineExceeded)), KindTimeout},
		{"bare deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", base, KindUnknown},
		{"wrapped tagged", fmt.Errorf("engine: %w", Persistence(base)), KindPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsCauseAndExistingTag(t *testing.T) {
	base := errors.New("db down")
	err := Persistence(base)
	if !errors.Is(err, base) {
		t.Fatalf("cause lost: %v", err)
	}
	// 已有分类的错误不会被改写
	if KindOf(Classification(err)) != KindPersistence {
		t.Fatalf("tag overwritten: %v", Classification(err))
	}
	if Classification(nil) != nil {
		t.Fatal("nil cause should stay nil")
	}
	if Code(err) != http.StatusInternalServerError {
		t.Fatalf("Code() = %d", Code(err))
	}
}
