package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/cli/internal/utils"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  string
		wantErr error
	}{
		{
			name:   "authorized",
			body:   `<input type="hidden" id="authorizedIDX" value="21BCE0001">`,
			wantID: "21BCE0001",
		},
		{
			name:   "authorized wins over stale error text",
			body:   `<span>Invalid Captcha</span><input id="authorizedIDX" value="21BCE0001">`,
			wantID: "21BCE0001",
		},
		{
			name:    "invalid captcha",
			body:    `<span class="error">Invalid Captcha</span>`,
			wantErr: utils.ErrInvalidCaptcha,
		},
		{
			name:    "captcha checked before credentials",
			body:    `<span>Invalid Captcha</span><span>Invalid Username / Password</span>`,
			wantErr: utils.ErrInvalidCaptcha,
		},
		{
			name:    "invalid credentials",
			body:    `<span>Invalid Username / Password</span>`,
			wantErr: utils.ErrInvalidCredentials,
		},
		{
			name:    "invalid credentials alternate wording",
			body:    `<span>invalid LoginId/Password</span>`,
			wantErr: utils.ErrInvalidCredentials,
		},
		{
			name:    "unknown",
			body:    `<h1>Service Unavailable</h1>`,
			wantErr: utils.ErrUnknownLoginFailure,
		},
		{
			name:    "empty authorized id",
			body:    `<input id="authorizedIDX" value=" ">`,
			wantErr: utils.ErrUnknownLoginFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := parseHTML([]byte("<html><body>" + tt.body + "</body></html>"))
			require.NoError(t, err)

			id, err := classify(doc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestPageMarkers(t *testing.T) {
	doc, err := parseHTML([]byte(`<html><body>
		<form><input type="hidden" name="_csrf" value=" tok "/></form>
		<div id="captchaBlock"><img src="/get/new/captcha?x=1"></div>
	</body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "tok", CSRFToken(doc))
	assert.Equal(t, "/get/new/captcha?x=1", captchaSource(doc))
	assert.False(t, hasRecaptcha(doc))

	doc, err = parseHTML([]byte(`<html><body><div class="g-recaptcha" data-sitekey="k"></div></body></html>`))
	require.NoError(t, err)
	assert.True(t, hasRecaptcha(doc))
	assert.Equal(t, "", CSRFToken(doc))
}
