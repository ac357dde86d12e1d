package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
)

func TestError_Message(t *testing.T) {
	err := ValidationFailed(ActValidateDraft, []string{"city is required", "price must not be negative"})
	assert.Equal(t, "ValidationError in ValidateDraft: validation failed [city is required; price must not be negative]", err.Error())
	assert.False(t, err.Retryable())

	cause := errors.New("dial tcp: refused")
	terr := Transient(ActFetchDraft, cause)
	assert.True(t, terr.Retryable())
	assert.ErrorIs(t, terr, cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound(ActFetchDraft, "draft %d not found", 1)))
	assert.Equal(t, KindCompensatable, KindOf(fmt.Errorf("charge: %w", Compensatable(ActCharge, "declined", nil))))
	assert.Equal(t, KindTransient, KindOf(errors.New("anything else")))
}

func TestClassify_KeepsOriginal(t *testing.T) {
	orig := NonFatal("", errors.New("partial"))
	got := classify(ActNotifyReviewers, orig)
	assert.Equal(t, ActNotifyReviewers, got.Activity)
	assert.Empty(t, orig.Activity)
}

func TestApplicationErrorRoundTrip(t *testing.T) {
	cases := []*Error{
		ValidationFailed(ActValidatePayment, []string{"amount must be positive"}),
		NotFound(ActFetchDraft, "draft %d not found", 42),
		Compensatable(ActCharge, "payment declined: do not honor", nil),
		NonFatal(ActNotifyReviewers, errors.New("reviewer-2 unreachable")),
		Transient(ActCreateEntity, errors.New("too many connections")),
	}

	for _, in := range cases {
		t.Run(string(in.Kind), func(t *testing.T) {
			encoded := toApplicationError("", in, 2)
			var appErr *temporal.ApplicationError
			require.True(t, errors.As(encoded, &appErr))
			assert.Equal(t, string(in.Kind), appErr.Type())
			assert.Equal(t, !in.Retryable(), appErr.NonRetryable())

			out := fromTemporal("", encoded, 0)
			assert.Equal(t, in.Kind, out.Kind)
			assert.Equal(t, in.Activity, out.Activity)
			assert.Equal(t, in.Message, out.Message)
			assert.Equal(t, in.Fields, out.Fields)
			assert.Equal(t, 2, out.Attempts)
		})
	}
}

func TestToApplicationError_ReencodesWrappedErrors(t *testing.T) {
	inner := temporal.NewNonRetryableApplicationError("declined", string(KindCompensatable), nil, errorDetails{Activity: ActCharge})
	decoded := fromTemporal(ActCharge, inner, 0)

	encoded := toApplicationError("", decoded, 0)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(encoded, &appErr))
	assert.Equal(t, string(KindCompensatable), appErr.Type())

	var d errorDetails
	require.NoError(t, appErr.Details(&d))
	assert.Equal(t, ActCharge, d.Activity)
}

func TestFromTemporal_Unclassified(t *testing.T) {
	assert.Nil(t, fromTemporal(ActFetchDraft, nil, 3))

	canceled := fromTemporal(ActFetchDraft, context.Canceled, 3)
	assert.Equal(t, KindTransient, canceled.Kind)
	assert.Equal(t, "canceled", canceled.Message)

	plain := fromTemporal(ActFetchDraft, errors.New("boom"), 3)
	assert.Equal(t, KindTransient, plain.Kind)
	assert.Equal(t, ActFetchDraft, plain.Activity)
}
