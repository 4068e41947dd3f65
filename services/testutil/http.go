package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
)

// Request describes a test call against a gin router.
type Request struct {
	Method     string
	Path       string
	Body       any
	Token      string
	Cookies    []*http.Cookie
	RemoteAddr string
}

func Do(router *gin.Engine, r Request) *httptest.ResponseRecorder {
	var payload []byte
	if r.Body != nil {
		payload, _ = json.Marshal(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	for _, c := range r.Cookies {
		req.AddCookie(c)
	}
	if r.RemoteAddr != "" {
		req.RemoteAddr = r.RemoteAddr
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func MakeAuthRequest(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	return Do(router, Request{Method: method, Path: path, Body: body, Token: token})
}

func MakeAPIRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	return MakeAuthRequest(router, method, path, body, "")
}

// ResponseCookie returns the named Set-Cookie of resp, or nil.
func ResponseCookie(resp *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range resp.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
