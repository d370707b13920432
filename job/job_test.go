package job_test

import (
	"context"
	"testing"

	"github.com/OpenPrinting/goipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printcore/pappl/attr"
	"github.com/printcore/pappl/job"
)

func TestStateMachineHappyPath(t *testing.T) {
	j := job.New(1, 1, "alice", "report.pdf", attr.New(), "application/pdf")
	ctx := context.Background()

	assert.Equal(t, job.StatePending, j.State())
	require.NoError(t, j.StartProcessing(ctx))
	assert.Equal(t, job.StateProcessing, j.State())
	require.NoError(t, j.Complete(ctx))
	assert.Equal(t, job.StateCompleted, j.State())
	assert.True(t, j.State().IsTerminal())
	assert.False(t, j.State().IsActive())
}

func TestStateMachineHoldRelease(t *testing.T) {
	j := job.New(2, 1, "bob", "memo.txt", attr.New(), "text/plain")
	ctx := context.Background()

	require.NoError(t, j.Hold(ctx))
	assert.Equal(t, job.StateHeld, j.State())
	require.NoError(t, j.Release(ctx))
	assert.Equal(t, job.StatePending, j.State())
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	j := job.New(3, 1, "carol", "x", attr.New(), "application/pdf")
	ctx := context.Background()
	require.NoError(t, j.StartProcessing(ctx))
	require.NoError(t, j.Cancel(ctx))
	assert.Equal(t, job.StateCanceled, j.State())
	assert.True(t, j.Canceling())
}

func TestCannotCancelTerminalJob(t *testing.T) {
	j := job.New(4, 1, "dave", "x", attr.New(), "application/pdf")
	ctx := context.Background()
	require.NoError(t, j.StartProcessing(ctx))
	require.NoError(t, j.Complete(ctx))
	assert.False(t, j.CanCancel())
	assert.Error(t, j.Cancel(ctx))
}

func TestValidateJobAttributesCopiesRejected(t *testing.T) {
	caps := job.Capabilities{
		ColorSupported: []string{"auto", "color", "monochrome"},
		MediaSupported: []string{"na_letter_8.5x11in"},
		SidesSupported: []string{"one-sided"},
	}
	submitted := attr.New()
	submitted.Add(goipp.TagInteger, "copies", goipp.Integer(1000))

	_, unsupported := job.ValidateJobAttributes(submitted, caps)
	require.Len(t, unsupported, 1)
	assert.Equal(t, "copies", unsupported[0].Name)
}

func TestValidateJobAttributesAcceptsKnownMedia(t *testing.T) {
	caps := job.Capabilities{
		MediaSupported: []string{"na_letter_8.5x11in"},
	}
	submitted := attr.New()
	submitted.Add(goipp.TagKeyword, "media", goipp.String("na_letter_8.5x11in"))

	accepted, unsupported := job.ValidateJobAttributes(submitted, caps)
	assert.Empty(t, unsupported)
	m, err := accepted.GetKeyword("media")
	require.NoError(t, err)
	assert.Equal(t, "na_letter_8.5x11in", m)
}

func TestValidateJobAttributesDefaultsJobName(t *testing.T) {
	submitted := attr.New()
	accepted, unsupported := job.ValidateJobAttributes(submitted, job.Capabilities{})
	assert.Empty(t, unsupported)
	name, err := accepted.GetString("job-name")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", name)
}

func TestValidateJobAttributesJobHoldUntilOnlyNoHold(t *testing.T) {
	submitted := attr.New()
	submitted.Add(goipp.TagKeyword, "job-hold-until", goipp.String("indefinite"))
	_, unsupported := job.ValidateJobAttributes(submitted, job.Capabilities{})
	require.Len(t, unsupported, 1)
	assert.Equal(t, "job-hold-until", unsupported[0].Name)
}

func TestStreamingCopiesOK(t *testing.T) {
	caps := job.Capabilities{StreamingFormats: map[string]struct{}{"image/pwg-raster": {}}}
	assert.True(t, job.StreamingCopiesOK(caps, "image/pwg-raster", 1))
	assert.False(t, job.StreamingCopiesOK(caps, "image/pwg-raster", 2))
	assert.True(t, job.StreamingCopiesOK(caps, "application/pdf", 5))
}
