package dto

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyReconciled, http.StatusUnprocessableEntity},
		{ErrCodeOverAllocated, http.StatusUnprocessableEntity},
		{ErrCodeConfiguration, http.StatusUnprocessableEntity},
		{ErrCodeAmbiguousState, http.StatusConflict},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"ERR_SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode("NOT_FOUND"))
	assert.Equal(t, ErrCodeOverAllocated, NormalizeErrorCode("OVER_ALLOCATED"))
	assert.Equal(t, ErrCodeConfiguration, NormalizeErrorCode("CONFIGURATION"))
	// API-format and unknown codes pass through.
	assert.Equal(t, ErrCodeValidation, NormalizeErrorCode(ErrCodeValidation))
	assert.Equal(t, "CUSTOM", NormalizeErrorCode("CUSTOM"))
}

func TestResponseEnvelope(t *testing.T) {
	ok := NewSuccessResponse(map[string]int{"count": 2})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	bad := NewErrorResponse(ErrCodeValidation, "nope")
	assert.False(t, bad.Success)
	assert.Equal(t, ErrCodeValidation, bad.Error.Code)
	assert.Equal(t, "nope", bad.Error.Message)
}
