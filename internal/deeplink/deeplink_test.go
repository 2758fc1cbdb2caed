package deeplink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRecoveryCode(t *testing.T) {
	tests := []struct {
		name string
		url  string
		code string
		ok   bool
	}{
		{"query code", "linova://reset-password?code=abc123", "abc123", true},
		{"query access token", "exp://192.168.0.2:8081/--/reset?access_token=tok", "tok", true},
		{"firebase style", "com.linova.app://reset?oobCode=oob-1", "oob-1", true},
		{"fragment", "linova://reset#access_token=frag&type=recovery", "frag", true},
		{"query wins over fragment", "linova://reset?code=q#code=f", "q", true},
		{"scheme case insensitive", "LINOVA://reset?code=x", "x", true},
		{"unknown scheme", "https://evil.example/reset?code=abc", "", false},
		{"no code", "linova://reset?type=recovery", "", false},
		{"blank code", "linova://reset?code=%20", "", false},
		{"garbage", "::not a url", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ParseRecoveryCode(tt.url, DefaultSchemes)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestPendingBuffersUntilAttach(t *testing.T) {
	var p Pending
	var opened []string
	nav := NavigatorFunc(func(code string) { opened = append(opened, code) })

	p.Deliver("first")
	p.Deliver("second")
	assert.Equal(t, "second", p.Buffered())
	assert.Empty(t, opened)

	p.Attach(nav)
	assert.Equal(t, []string{"second"}, opened)
	assert.Empty(t, p.Buffered())

	p.Deliver("third")
	assert.Equal(t, []string{"second", "third"}, opened)

	p.Attach(nil)
	p.Deliver("fourth")
	assert.Equal(t, "fourth", p.Buffered())
	assert.Len(t, opened, 2)
}
