package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusErrorRetryable(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{404, false},
	}

	for _, c := range cases {
		err := &HTTPStatusError{StatusCode: c.code, Body: "boom"}
		assert.Equal(t, c.retryable, err.Retryable(), "status %d", c.code)
		assert.Contains(t, err.Error(), "boom")
	}
}
