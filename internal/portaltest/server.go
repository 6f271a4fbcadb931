// Package portaltest runs an in-process imitation of the academic portal
// for tests: setup page, CAPTCHA login, landing page and authenticated
// data endpoints.
package portaltest

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type session struct {
	csrf       string
	authorized bool
}

// Server is a fake portal. Configure the exported fields before use; they
// may also be changed between requests under Lock/Unlock.
type Server struct {
	*httptest.Server

	sync.Mutex
	// UserID and Password are the only valid credentials.
	UserID   string
	Password string
	// Captcha is the answer the login form expects.
	Captcha string
	// CaptchaImage is served by the captcha endpoint, or inlined.
	CaptchaImage  []byte
	InlineCaptcha bool
	// MissingCSRF makes the next N setup pages omit the csrf token.
	MissingCSRF int
	// Recaptcha makes the next N login pages show a reCAPTCHA widget.
	Recaptcha int
	// ExpiredStatus is returned by data endpoints for unknown sessions.
	ExpiredStatus int
	// NoRedirect answers login posts with 200 instead of a redirect.
	NoRedirect bool

	sessions   map[string]*session
	nextID     int
	loginPosts int
	logouts    int
	dataCalls  map[string]int
}

// New starts a TLS fake portal and stops it when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		UserID:        "21BCE0001",
		Password:      "correct-horse",
		Captcha:       "K7PX3M",
		CaptchaImage:  []byte("\x89PNG\r\n\x1a\nfake"),
		ExpiredStatus: http.StatusUnauthorized,
		sessions:      make(map[string]*session),
		dataCalls:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/prelogin/setup", s.handleSetup)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/login/error", s.handleLoginError)
	mux.HandleFunc("/get/new/captcha", s.handleCaptcha)
	mux.HandleFunc("/content", s.handleContent)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/", s.handleData)

	s.Server = httptest.NewTLSServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// LoginPosts returns how many times credentials were submitted.
func (s *Server) LoginPosts() int {
	s.Lock()
	defer s.Unlock()
	return s.loginPosts
}

// Logouts returns how many logout requests were accepted.
func (s *Server) Logouts() int {
	s.Lock()
	defer s.Unlock()
	return s.logouts
}

// DataCalls returns how many requests reached path, successful or not.
func (s *Server) DataCalls(path string) int {
	s.Lock()
	defer s.Unlock()
	return s.dataCalls[path]
}

// ExpireSessions forgets every server side session.
func (s *Server) ExpireSessions() {
	s.Lock()
	defer s.Unlock()
	s.sessions = make(map[string]*session)
}

func (s *Server) lookup(r *http.Request) (string, *session) {
	c, err := r.Cookie("JSESSIONID")
	if err != nil {
		return "", nil
	}
	return c.Value, s.sessions[c.Value]
}

func (s *Server) newCSRF() string {
	s.nextID++
	return fmt.Sprintf("csrf-%04d", s.nextID)
}

func page(body string) string {
	return "<!DOCTYPE html><html><head><title>Portal</title></head><body>" + body + "</body></html>"
}

func csrfField(token string) string {
	return fmt.Sprintf(`<input type="hidden" name="_csrf" value="%s"/>`, html.EscapeString(token))
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()

	switch r.Method {
	case http.MethodGet:
		if s.MissingCSRF > 0 {
			s.MissingCSRF--
			fmt.Fprint(w, page("<p>Loading...</p>"))
			return
		}
		s.nextID++
		id := fmt.Sprintf("sess-%04d", s.nextID)
		sess := &session{csrf: s.newCSRF()}
		s.sessions[id] = sess
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: id, Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "SERVERID", Value: "s1", Path: "/"})
		fmt.Fprint(w, page(`<form id="stdForm">`+csrfField(sess.csrf)+`</form>`))
	case http.MethodPost:
		_, sess := s.lookup(r)
		if sess == nil || r.FormValue("_csrf") != sess.csrf || r.FormValue("flag") != "VTOP" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "portal", Value: "student", Path: "/"})
		fmt.Fprint(w, page("<p>ok</p>"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()

	_, sess := s.lookup(r)
	if sess == nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if r.Method == http.MethodGet {
		if s.Recaptcha > 0 {
			s.Recaptcha--
			fmt.Fprint(w, page(`<form>`+csrfField(sess.csrf)+`<div class="g-recaptcha" data-sitekey="abc"></div></form>`))
			return
		}
		src := "/get/new/captcha"
		if s.InlineCaptcha {
			src = "data:image/png;base64," + base64.StdEncoding.EncodeToString(s.CaptchaImage)
		}
		fmt.Fprint(w, page(`<form>`+csrfField(sess.csrf)+`<div id="captchaBlock"><img src="`+src+`"/></div></form>`))
		return
	}

	s.loginPosts++
	if r.FormValue("_csrf") != sess.csrf {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var target string
	switch {
	case r.FormValue("captchaStr") != s.Captcha:
		target = "/login/error?kind=captcha"
	case r.FormValue("username") != s.UserID || r.FormValue("password") != s.Password:
		target = "/login/error?kind=credentials"
	default:
		sess.authorized = true
		sess.csrf = s.newCSRF()
		http.SetCookie(w, &http.Cookie{Name: "loginUserType", Value: "vtopuser", Path: "/"})
		target = "/content"
	}

	if s.NoRedirect {
		fmt.Fprint(w, page("<p>processing</p>"))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleLoginError(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("kind") {
	case "captcha":
		fmt.Fprint(w, page(`<span class="error">Invalid Captcha</span>`))
	case "credentials":
		fmt.Fprint(w, page(`<span class="error">Invalid LoginId/Password</span>`))
	default:
		fmt.Fprint(w, page(`<span class="error">Something went wrong</span>`))
	}
}

func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(s.CaptchaImage)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()

	_, sess := s.lookup(r)
	if sess == nil || !sess.authorized {
		fmt.Fprint(w, page(`<p>Please login</p>`))
		return
	}
	fmt.Fprint(w, page(csrfField(sess.csrf)+
		fmt.Sprintf(`<input type="hidden" id="authorizedIDX" value="%s"/>`, html.EscapeString(s.UserID))+
		`<h1>Welcome</h1>`))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()

	id, sess := s.lookup(r)
	if sess == nil || !sess.authorized || r.FormValue("_csrf") != sess.csrf {
		w.WriteHeader(s.ExpiredStatus)
		return
	}
	delete(s.sessions, id)
	s.logouts++
	fmt.Fprint(w, page("<p>bye</p>"))
}

// handleData serves every authenticated endpoint: a page echoing the path,
// the term and a rotated csrf token.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()

	s.dataCalls[r.URL.Path]++
	_, sess := s.lookup(r)
	if r.Method != http.MethodPost || sess == nil || !sess.authorized ||
		r.FormValue("_csrf") != sess.csrf || r.FormValue("authorizedID") != s.UserID {
		w.WriteHeader(s.ExpiredStatus)
		return
	}

	if strings.HasSuffix(r.URL.Path, "/rotate") {
		sess.csrf = s.newCSRF()
	}
	fmt.Fprint(w, page(csrfField(sess.csrf)+
		fmt.Sprintf(`<div id="data" data-path="%s" data-term="%s">ok</div>`,
			html.EscapeString(r.URL.Path), html.EscapeString(r.FormValue("semesterSubId")))))
}
