package odata

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinCookies(t *testing.T) {
	assert.Equal(t, "a=1; b=2", joinCookies([]string{"a=1; Path=/", "b=2; HttpOnly"}))
	assert.Equal(t, "a=1", joinCookies([]string{"a=1; Path=/", "a=1; Secure"}))
	assert.Equal(t, "a=1; b=2", joinCookies([]string{" a=1 ", "", "b=2"}))
	assert.Equal(t, "", joinCookies(nil))
}

func TestHeaderValueIgnoresCase(t *testing.T) {
	h := http.Header{}
	h["etag"] = []string{`W/"1"`}
	assert.Equal(t, `W/"1"`, headerValue(h, "ETag"))

	h = http.Header{}
	h.Set("ETag", `W/"2"`)
	assert.Equal(t, `W/"2"`, headerValue(h, "etag"))

	assert.Equal(t, "", headerValue(http.Header{}, "ETag"))

	h = http.Header{}
	h["set-cookie"] = []string{"a=1", "b=2"}
	assert.Equal(t, []string{"a=1", "b=2"}, headerValues(h, "Set-Cookie"))
}
