package portal

import "strings"

type State int

const (
	Terminal State = iota
	Login
	EndpointInspection
	OneTimePassword
	SecondaryVerification
)

func (s State) String() string {
	switch s {
	case Login:
		return "Login"
	case EndpointInspection:
		return "EndpointInspection"
	case OneTimePassword:
		return "OneTimePassword"
	case SecondaryVerification:
		return "SecondaryVerification"
	case Terminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

type rule struct {
	state    State
	contains []string
}

/*******************************************************
Page signatures, matched top to bottom
**********************************************
  Login:
    <form id="auth_form" name="e1" method="post" action="/my.policy" ...>
    <table id="logon_page"> ...
    <input type='text' name='username' ...> <input type='password' name='password' ...>

  Endpoint inspection:
    <form id="no_inspection_host_form" ...> ... class="no-inspection-host" ...

  One time password:
    <form id="auth_form" ...> ... One Time Token ... <input name="otp">

  Secondary verification:
    <form id="auth_form" ...> ... Enter Your Microsoft verification code ... <input name="_F5_challenge">
*******************************************************/
var rules = []rule{
	{Login, []string{"logon_page", "auth_form", "<input type='text' name='username'", "<input type='password' name='password'"}},
	{EndpointInspection, []string{"no_inspection_host_form", "no-inspection-host"}},
	{OneTimePassword, []string{"auth_form", "One Time Token"}},
	{SecondaryVerification, []string{"auth_form", "Enter Your Microsoft verification code"}},
}

// Classify returns the state of the first rule whose every signature occurs
// in body. Pages matching no rule are Terminal: the portal has finished
// asking for things and this is the landing page.
func Classify(body string) State {
	for _, r := range rules {
		if containsAll(body, r.contains) {
			return r.state
		}
	}
	return Terminal
}

func containsAll(body string, subs []string) bool {
	for _, s := range subs {
		if !strings.Contains(body, s) {
			return false
		}
	}
	return true
}
