package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	for _, fingerprint := range []bool{true, false} {
		client := &http.Client{Transport: New(Options{Timeout: 5 * time.Second, Fingerprint: fingerprint})}

		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("fingerprint=%v: Get: %v", fingerprint, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if string(body) != "ok" {
			t.Errorf("fingerprint=%v: body = %q, want ok", fingerprint, body)
		}
	}
}

func TestNew_RoutesByScheme(t *testing.T) {
	rt := New(Options{Fingerprint: true}).(*schemeTransport)

	if _, ok := rt.secure.(*chromeTransport); !ok {
		t.Errorf("secure transport = %T, want *chromeTransport", rt.secure)
	}
	if rt.plain == rt.secure {
		t.Error("plain and secure transports should differ when fingerprinting")
	}

	rt = New(Options{}).(*schemeTransport)
	if rt.plain != rt.secure {
		t.Error("without fingerprinting both schemes should share the plain transport")
	}
}
