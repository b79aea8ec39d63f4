package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_TimeoutAndTransport(t *testing.T) {
	c := NewURLGuard().Client(3 * time.Second)

	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
	if c.Transport == nil || c.Transport == http.DefaultTransport {
		t.Error("expected a dedicated transport")
	}
}

// httptestサーバーは127.0.0.1で待ち受けるため、接続時に拒否される。
func TestClient_BlocksLoopbackAtDial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := NewURLGuard().Client(2 * time.Second).Get(ts.URL)
	if err == nil {
		t.Fatal("expected loopback request to be blocked")
	}
}

func TestCheck_Allowed(t *testing.T) {
	g := NewURLGuard()
	for _, u := range []string{
		"https://example.com/users/user_1.json",
		"http://api.example.org/v1/users/user_2",
		"https://93.184.216.34/user.json",
	} {
		t.Run(u, func(t *testing.T) {
			if err := g.Check(u); err != nil {
				t.Errorf("Check(%q) = %v, want nil", u, err)
			}
		})
	}
}

func TestCheck_Rejected(t *testing.T) {
	tests := []struct {
		url  string
		want error
	}{
		{"", ErrEmptyURL},
		{"ftp://example.com/user.json", ErrScheme},
		{"file:///etc/passwd", ErrScheme},
		{"user.json", ErrScheme},
		{"http:///user.json", ErrEmptyHost},
		{"http://10.0.0.1/user.json", ErrBlockedAddress},
		{"http://172.31.255.255/user.json", ErrBlockedAddress},
		{"http://192.168.1.100/user.json", ErrBlockedAddress},
		{"http://127.0.0.2/user.json", ErrBlockedAddress},
		{"http://localhost/user.json", ErrBlockedAddress},
		{"http://LOCALHOST:8080/user.json", ErrBlockedAddress},
		{"http://169.254.169.254/latest/meta-data/", ErrBlockedAddress},
		{"http://0.0.0.0/user.json", ErrBlockedAddress},
		{"http://[::1]/user.json", ErrBlockedAddress},
		{"http://[fd00::1]/user.json", ErrBlockedAddress},
		{"http://[::ffff:127.0.0.1]/user.json", ErrBlockedAddress},
	}

	g := NewURLGuard()
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := g.Check(tt.url)
			if !errors.Is(err, tt.want) {
				t.Errorf("Check(%q) = %v, want %v", tt.url, err, tt.want)
			}
		})
	}
}
