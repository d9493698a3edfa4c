package remote

import (
	"errors"
	"net/http"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"github.com/stretchr/testify/assert"
)

func errorResponse(status int) error {
	return &gogithub.ErrorResponse{
		Response: &http.Response{StatusCode: status},
	}
}

func TestIsUnprocessable(t *testing.T) {
	assert.True(t, IsUnprocessable(errorResponse(http.StatusUnprocessableEntity)))
	assert.False(t, IsUnprocessable(errorResponse(http.StatusNotFound)))
	assert.False(t, IsUnprocessable(errors.New("some other error")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(errorResponse(http.StatusNotFound)))
	assert.False(t, IsNotFound(errorResponse(http.StatusUnprocessableEntity)))
}

func TestIsRateLimited(t *testing.T) {
	rateErr := &gogithub.RateLimitError{
		Rate: gogithub.Rate{Reset: gogithub.Timestamp{Time: time.Now().Add(time.Minute)}},
	}
	assert.True(t, IsRateLimited(rateErr))
	assert.False(t, IsRateLimited(errorResponse(http.StatusNotFound)))
}

func TestContentTypeFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"archive.zip", "application/zip"},
		{"backup.tar", "application/x-tar"},
		{"backup.tar.gz", "application/gzip"},
		{"manifest.json", "application/json"},
		{"video.mp4", "application/octet-stream"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ContentTypeFromName(tt.name))
	}
}

func TestRateLimitRetryAfter_AbuseError(t *testing.T) {
	wait := 30 * time.Second
	abuseErr := &gogithub.AbuseRateLimitError{RetryAfter: &wait}
	assert.Equal(t, wait, rateLimitRetryAfter(abuseErr))
}
