package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	return serveWith(t, Options{IsDev: true, TrustUserHeader: true}, req)
}

func serveWith(t *testing.T, opts Options, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var gotUser, gotSession string
	h := Middleware(opts)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, gotUser, gotSession
}

func TestMiddlewareIssuesAnonCookie(t *testing.T) {
	t.Parallel()

	rr, user, session := serve(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if !isValidAnonID(user) {
		t.Fatalf("user id = %q, want anonymous id", user)
	}
	if session != DefaultSessionIDValue {
		t.Errorf("session id = %q", session)
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != user {
		t.Fatalf("cookies = %+v", cookies)
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	t.Parallel()

	id, err := generateAnonID()
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/?session_id=tab-1", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})

	_, user, session := serve(t, req)
	if user != id {
		t.Errorf("user id = %q, want %q", user, id)
	}
	if session != "tab-1" {
		t.Errorf("session id = %q, want tab-1", session)
	}
}

func TestMiddlewareHeaderIdentity(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeaderName, "telegram:42")
	req.Header.Set(SessionHeaderName, "bad session id!")

	rr, user, session := serve(t, req)
	if user != "telegram:42" {
		t.Errorf("user id = %q", user)
	}
	if session != DefaultSessionIDValue {
		t.Errorf("malformed session id not replaced: %q", session)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("cookie set for header identity")
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeaderName, "robert'); drop table")

	rr, user, _ := serve(t, req)
	if rr.Code != http.StatusBadRequest || user != "" {
		t.Fatalf("status = %d, user = %q", rr.Code, user)
	}
}

func TestMiddlewareIgnoresUntrustedHeader(t *testing.T) {
	t.Parallel()

	victim, err := generateAnonID()
	if err != nil {
		t.Fatal(err)
	}

	for _, header := range []string{victim, "robert'); drop table"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(UserHeaderName, header)

		rr, user, _ := serveWith(t, Options{}, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("header %q: status = %d", header, rr.Code)
		}
		if user == header || !isValidAnonID(user) {
			t.Fatalf("header %q: user id = %q, want a fresh anonymous id", header, user)
		}
		cookies := rr.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value != user {
			t.Fatalf("header %q: cookies = %+v", header, cookies)
		}
		if !cookies[0].Secure {
			t.Errorf("header %q: cookie not Secure outside development", header)
		}
	}
}
