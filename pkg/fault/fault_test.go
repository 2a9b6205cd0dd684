package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(Newf(KindNotFound, "missing")))
	assert.Equal(t, KindInvalidInput, KindOf(fmt.Errorf("wrapped: %w", Newf(KindInvalidInput, "bad"))))
	assert.Equal(t, KindStageFailed, KindOf(errors.New("unclassified")))
}

func TestErrorFormatting(t *testing.T) {
	err := NewStage("Dev", SubkindTransport, errors.New("connection reset"))
	assert.Equal(t, "stage_failed (transport, stage Dev): connection reset", err.Error())

	plain := Newf(KindPersistenceFailed, "disk full")
	assert.Equal(t, "persistence_failed: disk full", plain.Error())
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := New(KindUpstreamFailed, inner)
	assert.True(t, errors.Is(err, inner))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInvalidInput, ExitCode(Newf(KindInvalidInput, "x")))
	assert.Equal(t, ExitInvalidInput, ExitCode(Newf(KindNotFound, "x")))
	assert.Equal(t, ExitStageFailed, ExitCode(NewStage("QA", SubkindTimeout, errors.New("x"))))
	assert.Equal(t, ExitPersistenceFailed, ExitCode(Newf(KindPersistenceFailed, "x")))
	assert.Equal(t, ExitUpstreamFailed, ExitCode(Newf(KindUpstreamFailed, "x")))
	assert.Equal(t, ExitStageFailed, ExitCode(errors.New("unclassified")))
}
