package portal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"
)

// Trimmed captures of the pages an APM portal serves along the way.
const (
	loginPage = `<html><body>
<table id="logon_page"><tr><td>
<form id="auth_form" name="e1" method="post" action="/my.policy" autocomplete="off">
<input type='hidden' name='vhost' value='standard'>
<input type='text' name='username' value=''>
<input type='password' name='password' value=''>
<input type='submit' class="credentials_input_submit" value='Logon'>
</form>
</td></tr></table>
</body></html>`

	inspectionPage = `<html><body>
<form id="no_inspection_host_form" method="post" action="/my.policy">
<div class="no-inspection-host">Checking your system. Please wait while the endpoint inspector runs.</div>
</form>
</body></html>`

	otpPage = `<html><body>
<form id="auth_form" name="e1" method="post" action="/my.policy">
<td class="credentials_table_field">One Time Token</td>
<input type="text" name="otp" value="" autocomplete="off">
<input type="submit" value="Logon">
</form>
</body></html>`

	verificationPage = `<html><body>
<form id="auth_form" name="e1" method="post" action="/my.policy">
<td>Enter Your Microsoft verification code</td>
<input type="text" name="_F5_challenge" value="">
<input type="hidden" name="vhost" value="standard">
</form>
</body></html>`

	landingPage = `<html><head><title>Network Access</title></head><body><h1>You are now connected</h1></body></html>`
)

// newTestSession starts a TLS portal backed by handler and returns a session
// pointed at it.
func newTestSession(t *testing.T, handler http.Handler) *Session {
	t.Helper()
	ts := httptest.NewTLSServer(handler)
	t.Cleanup(ts.Close)

	s, err := NewSession(strings.TrimPrefix(ts.URL, "https://"), "test-agent/1.0", ts.Client().Transport, log.NewNopLogger())
	require.NoError(t, err)
	return s
}

func setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: value, Path: "/"})
}
