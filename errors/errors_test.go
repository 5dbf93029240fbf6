package errors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelineerrors "github.com/lexus2k/pipeline/errors"
)

func TestWrapTransientNil(t *testing.T) {
	require.NoError(t, pipelineerrors.WrapTransient(nil, "Pad", "Push", "enqueue"))
}

func TestWrapTransientClassification(t *testing.T) {
	err := pipelineerrors.WrapTransient(pipelineerrors.ErrQueueFull, "BoundedQueuePad", "Push", "enqueue timed out")
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsTransient(err))
	assert.False(t, pipelineerrors.IsFatal(err))
}

func TestIsTransientContextErrors(t *testing.T) {
	assert.True(t, pipelineerrors.IsTransient(context.DeadlineExceeded))
	assert.True(t, pipelineerrors.IsTransient(context.Canceled))
}

func TestWrapFatalClassification(t *testing.T) {
	err := pipelineerrors.WrapFatal(pipelineerrors.ErrSegmentInvalid, "SharedSubscriberNode", "attach", "segment marked invalid")
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsFatal(err))
	assert.False(t, pipelineerrors.IsTransient(err))
}

func TestWrapInvalidClassification(t *testing.T) {
	err := pipelineerrors.WrapInvalid(pipelineerrors.ErrPadNotFound, "BaseNode", "Connect", "no such pad")
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsInvalid(err))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "transient", pipelineerrors.ClassTransient.String())
	assert.Equal(t, "invalid", pipelineerrors.ClassInvalid.String())
	assert.Equal(t, "fatal", pipelineerrors.ClassFatal.String())
}
