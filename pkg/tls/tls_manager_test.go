package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestTLSManagerDisabled(t *testing.T) {
	manager, err := NewTLSManager(&TLSConfig{})
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}
	if manager.IsEnabled() {
		t.Error("TLS should be disabled by default")
	}
	if manager.GetTLSConfig() != nil {
		t.Error("TLS config should be nil when TLS is disabled")
	}
	if manager.NeedsHTTPServer() {
		t.Error("no HTTP listener expected without TLS")
	}
}

func TestTLSConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config TLSConfig
	}{
		{"empty domain", TLSConfig{EnableTLS: true, EnableLetsEncrypt: true, LetsEncryptEmail: "ops@simplimath.test"}},
		{"empty email", TLSConfig{EnableTLS: true, EnableLetsEncrypt: true, Domain: "simplimath.test"}},
		{"self signed with acme", TLSConfig{EnableTLS: true, EnableLetsEncrypt: true, Domain: "simplimath.test", LetsEncryptEmail: "ops@simplimath.test", SelfSigned: true}},
		{"missing files", TLSConfig{EnableTLS: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := &TLSManager{config: &tt.config}
			if err := manager.validateConfig(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestManualTLSMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	_, err := NewTLSManager(&TLSConfig{
		EnableTLS: true,
		CertFile:  filepath.Join(dir, "server.crt"),
		KeyFile:   filepath.Join(dir, "server.key"),
	})
	if err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}

func TestSelfSignedCertificate(t *testing.T) {
	dir := t.TempDir()
	config := &TLSConfig{
		EnableTLS:  true,
		SelfSigned: true,
		CertFile:   filepath.Join(dir, "certs", "server.crt"),
		KeyFile:    filepath.Join(dir, "certs", "server.key"),
	}
	manager, err := NewTLSManager(config)
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}

	tlsConfig := manager.GetTLSConfig()
	if tlsConfig == nil || len(tlsConfig.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %+v", tlsConfig)
	}
	leaf, err := x509.ParseCertificate(tlsConfig.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("certificate does not cover localhost: %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("certificate does not cover 127.0.0.1: %v", err)
	}

	// A second manager reuses the files instead of generating new ones.
	again, err := NewTLSManager(config)
	if err != nil {
		t.Fatal(err)
	}
	if string(again.GetTLSConfig().Certificates[0].Certificate[0]) != string(tlsConfig.Certificates[0].Certificate[0]) {
		t.Error("certificate was regenerated")
	}
}

func TestSelfSignedServer(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewTLSManager(&TLSConfig{
		EnableTLS:  true,
		SelfSigned: true,
		CertFile:   filepath.Join(dir, "server.crt"),
		KeyFile:    filepath.Join(dir, "server.key"),
	})
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	server.TLS = manager.GetTLSConfig()
	server.StartTLS()
	defer server.Close()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("GET over TLS failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestTLSRedirectHandler(t *testing.T) {
	tests := []struct {
		port     string
		target   string
		expected string
	}{
		{"443", "http://simplimath.test/ws?token=x", "https://simplimath.test/ws?token=x"},
		{"8443", "http://simplimath.test:8080/api/programs", "https://simplimath.test:8443/api/programs"},
	}

	for _, tt := range tests {
		manager := &TLSManager{config: &TLSConfig{EnableTLS: true, HTTPSPort: tt.port, RedirectAddress: ":80"}}
		if !manager.NeedsHTTPServer() {
			t.Error("redirect address set, HTTP listener expected")
		}
		rec := httptest.NewRecorder()
		manager.GetHTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rec.Code != http.StatusMovedPermanently {
			t.Errorf("status = %d, want 301", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != tt.expected {
			t.Errorf("Location = %q, want %q", got, tt.expected)
		}
	}
}
