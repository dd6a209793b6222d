package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/spinelctl/internal/ncp"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/session"
	"github.com/danmuck/spinelctl/internal/testutil/fakencp"
	"github.com/danmuck/spinelctl/internal/testutil/testlog"
	"github.com/danmuck/spinelctl/internal/testutil/tlstest"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// watchedSession reports when the gateway has attached a subscriber.
type watchedSession struct {
	*ncp.Session
	subscribed chan struct{}
}

func (w *watchedSession) Subscribe(props ...protocol.PropertyID) *ncp.Subscription {
	sub := w.Session.Subscribe(props...)
	w.subscribed <- struct{}{}
	return sub
}

func newTestServer(t *testing.T) (*Server, *fakencp.Device, *watchedSession) {
	t.Helper()
	return newTestServerWith(t, Config{Name: "spinelctl-test", RequestTimeout: 2 * time.Second})
}

func newTestServerWith(t *testing.T, gcfg Config) (*Server, *fakencp.Device, *watchedSession) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dev, conn := fakencp.New(t)
	cfg := session.DefaultConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	s, err := ncp.Open(conn, cfg, nil)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	watched := &watchedSession{Session: s, subscribed: make(chan struct{}, 4)}
	srv := New(gcfg, watched)
	return srv, dev, watched
}

func do(t *testing.T, srv *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	return doWith(t, srv, method, path, body, "")
}

func doWith(t *testing.T, srv *Server, method, path, body, authz string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, req)

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode body: %v body=%s", method, path, err, rr.Body.String())
		}
	}
	return rr.Code, out
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	srv, _, _ := newTestServer(t)

	code, body := do(t, srv, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" || body["service"] != "spinelctl-test" {
		t.Fatalf("unexpected health: %d %#v", code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "spinel_http_requests_total") {
		t.Fatalf("metrics missing: %d", rr.Code)
	}
}

func TestGetProperty(t *testing.T) {
	testlog.Start(t)
	srv, dev, _ := newTestServer(t)
	dev.SetProperty(protocol.PropPHYChan, []byte{11})
	dev.SetProperty(protocol.PropNetXPANID, []byte{0xde, 0xad, 0xbe, 0xef})

	for _, path := range []string{"/v1/properties/PHY_CHAN", "/v1/properties/0x21", "/v1/properties/prop_phy_chan"} {
		code, body := do(t, srv, http.MethodGet, path, "")
		if code != http.StatusOK || body["property"] != "PHY_CHAN" || body["value"] != float64(11) {
			t.Fatalf("%s: %d %#v", path, code, body)
		}
	}
	code, body := do(t, srv, http.MethodGet, "/v1/properties/NET_XPANID", "")
	if code != http.StatusOK || body["value"] != "deadbeef" {
		t.Fatalf("data value: %d %#v", code, body)
	}
}

func TestGetPropertyErrors(t *testing.T) {
	testlog.Start(t)
	srv, _, _ := newTestServer(t)

	if code, _ := do(t, srv, http.MethodGet, "/v1/properties/NOT_A_PROP", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	code, body := do(t, srv, http.MethodGet, "/v1/properties/PHY_CHAN", "")
	if code != http.StatusBadGateway || body["device_status"] != "PROP_NOT_FOUND" {
		t.Fatalf("expected device status error, got %d %#v", code, body)
	}
}

func TestWriteRoutes(t *testing.T) {
	testlog.Start(t)
	srv, dev, _ := newTestServer(t)

	if code, body := do(t, srv, http.MethodPut, "/v1/properties/PHY_CHAN", `{"value": 15}`); code != http.StatusOK {
		t.Fatalf("set: %d %#v", code, body)
	}
	if v, _ := dev.Property(protocol.PropPHYChan); !bytes.Equal(v, []byte{15}) {
		t.Fatalf("device holds % x", v)
	}
	if code, _ := do(t, srv, http.MethodPut, "/v1/properties/NET_NETWORK_KEY", `{"value": "00112233"}`); code != http.StatusOK {
		t.Fatalf("set data: %d", code)
	}
	if v, _ := dev.Property(protocol.PropNetNetworkKey); !bytes.Equal(v, []byte{0x00, 0x11, 0x22, 0x33}) {
		t.Fatalf("device holds % x", v)
	}

	if code, _ := do(t, srv, http.MethodPost, "/v1/properties/MAC_SCAN_MASK/insert", `{"value": 25}`); code != http.StatusOK {
		t.Fatalf("insert: %d", code)
	}
	if code, _ := do(t, srv, http.MethodPost, "/v1/properties/MAC_SCAN_MASK/remove", `{"value": 25}`); code != http.StatusOK {
		t.Fatalf("remove: %d", code)
	}

	if code, _ := do(t, srv, http.MethodPut, "/v1/properties/PHY_CHAN", `{"value": 300}`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range value, got %d", code)
	}
	if code, _ := do(t, srv, http.MethodPut, "/v1/properties/PHY_CHAN", `{"value":`); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", code)
	}

	dev.Reject(protocol.PropPHYTxPower, protocol.StatusInvalidArgument)
	code, body := do(t, srv, http.MethodPut, "/v1/properties/PHY_TX_POWER", `{"value": -2}`)
	if code != http.StatusBadGateway || body["device_status"] != "INVALID_ARGUMENT" {
		t.Fatalf("expected rejected write, got %d %#v", code, body)
	}
}

func TestResetAndInfo(t *testing.T) {
	testlog.Start(t)
	srv, dev, _ := newTestServer(t)

	code, body := do(t, srv, http.MethodPost, "/v1/reset", "")
	if code != http.StatusOK || body["reason"] != "RESET_SOFTWARE" || body["epoch"] != float64(1) {
		t.Fatalf("reset: %d %#v", code, body)
	}

	dev.SetProperty(protocol.PropProtocolVersion, []byte{4, 3})
	dev.SetProperty(protocol.PropNCPVersion, []byte("RCP/1.0\x00"))
	dev.SetProperty(protocol.PropInterfaceType, []byte{3})
	dev.SetProperty(protocol.PropCaps, []byte{0x05})
	code, body = do(t, srv, http.MethodGet, "/v1/info", "")
	if code != http.StatusOK || body["ncp_version"] != "RCP/1.0" || body["protocol_major"] != float64(4) {
		t.Fatalf("info: %d %#v", code, body)
	}

	code, body = do(t, srv, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["protocol"] != "4.3" {
		t.Fatalf("health after identify: %d %#v", code, body)
	}

	code, body = do(t, srv, http.MethodGet, "/v1/properties", "")
	if list, ok := body["properties"].([]any); code != http.StatusOK || !ok || len(list) == 0 {
		t.Fatalf("properties: %d %#v", code, body)
	}
}

func TestNotificationStream(t *testing.T) {
	testlog.Start(t)
	srv, dev, watched := newTestServer(t)
	ts := httptest.NewServer(srv.HTTPRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications?property=STREAM_DEBUG"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-watched.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("gateway never subscribed")
	}

	if err := dev.Notify(protocol.NewIs(protocol.PropStreamLog, []byte("skip\x00"))); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := dev.Notify(protocol.NewIs(protocol.PropStreamDebug, []byte("abc"))); err != nil {
		t.Fatalf("notify: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg notificationMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Property != "STREAM_DEBUG" || msg.Value != "616263" || msg.Raw != "616263" || msg.Command != "PROP_VALUE_IS" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestNotificationStreamRejectsUnknownFilter(t *testing.T) {
	testlog.Start(t)
	srv, _, _ := newTestServer(t)
	if code, _ := do(t, srv, http.MethodGet, "/v1/notifications?property=BOGUS", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestTokenGuardsMutatingRoutes(t *testing.T) {
	testlog.Start(t)
	srv, dev, _ := newTestServerWith(t, Config{Name: "spinelctl-test", Token: "s3cret"})
	dev.SetProperty(protocol.PropPHYChan, []byte{11})

	if code, _ := do(t, srv, http.MethodPut, "/v1/properties/PHY_CHAN", `{"value": 12}`); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code, _ := doWith(t, srv, http.MethodPost, "/v1/reset", "", "Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", code)
	}
	if v, _ := dev.Property(protocol.PropPHYChan); !bytes.Equal(v, []byte{11}) {
		t.Fatalf("rejected write reached the device: % x", v)
	}
	if code, _ := doWith(t, srv, http.MethodPut, "/v1/properties/PHY_CHAN", `{"value": 12}`, "Bearer s3cret"); code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}
	if code, _ := do(t, srv, http.MethodGet, "/v1/properties/PHY_CHAN", ""); code != http.StatusOK {
		t.Fatalf("reads should not need a token, got %d", code)
	}
}

func TestServeListenerTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t)
	certFile, keyFile := ca.ServerFiles(t)
	srv, _, _ := newTestServerWith(t, Config{Name: "spinelctl-test", TLSCertFile: certFile, TLSKeyFile: keyFile})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	client := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ca.ClientConfig()},
	}
	resp, err := client.Get("https://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("https get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.TLS == nil {
		t.Fatalf("unexpected response: %d tls=%v", resp.StatusCode, resp.TLS != nil)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
