package errortypes

import (
	"errors"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb3"
	"github.com/stretchr/testify/assert"
)

func TestReadCode(t *testing.T) {
	testCases := []struct {
		description  string
		err          error
		expectedCode int
	}{
		{description: "bad-input", err: &BadInput{Message: "m"}, expectedCode: BadInputErrorCode},
		{description: "bad-server-response", err: &BadServerResponse{Message: "m"}, expectedCode: BadServerResponseErrorCode},
		{description: "timeout", err: &Timeout{Message: "m"}, expectedCode: TimeoutErrorCode},
		{description: "warning", err: &Warning{Message: "m", WarningCode: UnlinkableBidWarningCode}, expectedCode: UnlinkableBidWarningCode},
		{description: "plain", err: errors.New("m"), expectedCode: UnknownErrorCode},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expectedCode, ReadCode(test.err), test.description)
	}
}

func TestSeverityFilters(t *testing.T) {
	fatal := &BadInput{Message: "fatal"}
	warning := &Warning{Message: "warning"}
	plain := errors.New("plain")
	errs := []error{fatal, warning, plain}

	assert.Equal(t, []error{fatal, plain}, FatalOnly(errs))
	assert.Equal(t, []error{warning}, WarningOnly(errs))
	assert.True(t, ContainsFatalError(errs))
	assert.False(t, ContainsFatalError([]error{warning}))
	assert.True(t, IsWarning(warning))
	assert.False(t, IsWarning(plain))
}

func TestAggregateErrors(t *testing.T) {
	assert.Equal(t, "", NewAggregateErrors("empty", nil).Error())
	assert.Equal(t, "validation (1 error):\n  1: a\n", NewAggregateErrors("validation", []error{errors.New("a")}).Error())
	assert.Equal(t, "validation (2 errors):\n  1: a\n  2: b\n", NewAggregateErrors("validation", []error{errors.New("a"), errors.New("b")}).Error())
}

func TestGetNBRCodeFromError(t *testing.T) {
	assert.Equal(t, openrtb3.NoBidInsufficientTime, GetNBRCodeFromError(&Timeout{}))
	assert.Equal(t, openrtb3.NoBidInvalidRequest, GetNBRCodeFromError(&BadInput{}))
	assert.Equal(t, openrtb3.NoBidTechnicalError, GetNBRCodeFromError(&BadServerResponse{}))
	assert.Equal(t, openrtb3.NoBidUnknownError, GetNBRCodeFromError(errors.New("other")))
}
