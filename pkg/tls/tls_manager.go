package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/simplimath/pkg/configuration"
	"github.com/antibyte/simplimath/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

// TLSManager serves the terminal certificates, either from files or
// through Let's Encrypt.
type TLSManager struct {
	config      *TLSConfig
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
	initialized bool
}

// TLSConfig holds the [TLS] section.
type TLSConfig struct {
	EnableTLS         bool
	EnableLetsEncrypt bool
	Domain            string
	LetsEncryptEmail  string
	CertCacheDir      string
	CertFile          string
	KeyFile           string
	SelfSigned        bool   // generate CertFile/KeyFile when missing
	RedirectAddress   string // plain HTTP listener for redirects and ACME challenges
	HTTPSPort         string
}

// LoadConfig reads the [TLS] section. The HTTPS port is taken from
// Server.listen_address.
func LoadConfig() *TLSConfig {
	httpsPort := "443"
	if _, port, err := net.SplitHostPort(configuration.GetString("Server", "listen_address", ":8080")); err == nil && port != "" {
		httpsPort = port
	}
	return &TLSConfig{
		EnableTLS:         configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt: configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:            configuration.GetString("TLS", "domain", ""),
		LetsEncryptEmail:  configuration.GetString("TLS", "letsencrypt_email", ""),
		CertCacheDir:      configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		CertFile:          configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:           configuration.GetString("TLS", "key_file", "./certs/server.key"),
		SelfSigned:        configuration.GetBool("TLS", "self_signed", false),
		RedirectAddress:   configuration.GetString("TLS", "redirect_address", ""),
		HTTPSPort:         httpsPort,
	}
}

// NewTLSManager validates config and prepares the certificates.
func NewTLSManager(config *TLSConfig) (*TLSManager, error) {
	manager := &TLSManager{config: config}

	if err := manager.validateConfig(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}

	if config.EnableTLS {
		if err := manager.initializeTLS(); err != nil {
			return nil, fmt.Errorf("TLS initialization failed: %w", err)
		}
	}

	return manager, nil
}

func (tm *TLSManager) validateConfig() error {
	if !tm.config.EnableTLS {
		return nil
	}
	if tm.config.EnableLetsEncrypt {
		if strings.TrimSpace(tm.config.Domain) == "" {
			return fmt.Errorf("domain is required when Let's Encrypt is enabled")
		}
		if strings.TrimSpace(tm.config.LetsEncryptEmail) == "" {
			return fmt.Errorf("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		if tm.config.SelfSigned {
			return fmt.Errorf("self_signed cannot be combined with Let's Encrypt")
		}
		if strings.Contains(tm.config.Domain, "example.com") {
			logger.SecurityWarn("Using example domain - change this in production!")
		}
		return nil
	}
	if tm.config.CertFile == "" || tm.config.KeyFile == "" {
		return fmt.Errorf("cert_file and key_file are required for manual TLS")
	}
	return nil
}

func (tm *TLSManager) initializeTLS() error {
	if tm.config.EnableLetsEncrypt {
		return tm.initializeLetsEncrypt()
	}
	return tm.initializeManualTLS()
}

func (tm *TLSManager) initializeLetsEncrypt() error {
	logger.SecurityInfo("Initializing Let's Encrypt for domain: %s", tm.config.Domain)

	if err := os.MkdirAll(tm.config.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	tm.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(tm.config.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      tm.config.LetsEncryptEmail,
		HostPolicy: autocert.HostWhitelist(tm.config.Domain, "www."+tm.config.Domain),
	}

	tm.tlsConfig = &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if hello.ServerName == "" {
				hello.ServerName = tm.config.Domain
			}
			cert, err := tm.autocertMgr.GetCertificate(hello)
			if err != nil {
				logger.SecurityWarn("Failed to get certificate for %s: %v", hello.ServerName, err)
				return nil, err
			}
			return cert, nil
		},
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS12,
	}

	tm.initialized = true
	return nil
}

func (tm *TLSManager) initializeManualTLS() error {
	if !fileExists(tm.config.CertFile) || !fileExists(tm.config.KeyFile) {
		if !tm.config.SelfSigned {
			return fmt.Errorf("certificate or key file not found: %s, %s", tm.config.CertFile, tm.config.KeyFile)
		}
		hosts := []string{"localhost", "127.0.0.1"}
		if tm.config.Domain != "" {
			hosts = append(hosts, tm.config.Domain)
		}
		if err := GenerateSelfSignedCert(tm.config.CertFile, tm.config.KeyFile, hosts); err != nil {
			return err
		}
	}

	cert, err := tls.LoadX509KeyPair(tm.config.CertFile, tm.config.KeyFile)
	if err != nil {
		return fmt.Errorf("loading key pair: %w", err)
	}
	tm.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	tm.initialized = true
	logger.SecurityInfo("Manual TLS initialized with cert: %s", tm.config.CertFile)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetTLSConfig returns the server TLS configuration, nil when disabled.
func (tm *TLSManager) GetTLSConfig() *tls.Config {
	if !tm.initialized || !tm.config.EnableTLS {
		return nil
	}
	return tm.tlsConfig
}

// NeedsHTTPServer reports whether a plain HTTP listener should run next
// to the HTTPS one.
func (tm *TLSManager) NeedsHTTPServer() bool {
	return tm.config.EnableTLS && tm.config.RedirectAddress != ""
}

// GetHTTPHandler redirects plain HTTP to HTTPS, answering ACME challenges
// first when Let's Encrypt is used.
func (tm *TLSManager) GetHTTPHandler() http.Handler {
	redirect := tm.GetHTTPSRedirectHandler()
	if tm.autocertMgr != nil {
		return tm.autocertMgr.HTTPHandler(redirect)
	}
	return redirect
}

// GetHTTPSRedirectHandler returns a handler that redirects HTTP to HTTPS
func (tm *TLSManager) GetHTTPSRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if tm.config.HTTPSPort != "" && tm.config.HTTPSPort != "443" {
			target = "https://" + net.JoinHostPort(host, tm.config.HTTPSPort)
		}
		target += r.URL.RequestURI()

		logger.Debug(logger.AreaSecurity, "Redirecting HTTP to HTTPS: %s -> %s", r.URL.String(), target)
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// IsEnabled returns true if TLS is enabled
func (tm *TLSManager) IsEnabled() bool {
	return tm.config.EnableTLS
}

// GetRedirectAddress returns the plain HTTP listen address.
func (tm *TLSManager) GetRedirectAddress() string {
	return tm.config.RedirectAddress
}

// GetDomain returns the configured domain
func (tm *TLSManager) GetDomain() string {
	return tm.config.Domain
}

// GenerateSelfSignedCert writes a one-year ECDSA certificate for hosts,
// for development setups without a real certificate.
func GenerateSelfSignedCert(certFile, keyFile string, hosts []string) error {
	logger.SecurityWarn("Generating self-signed certificate for %s", strings.Join(hosts, ", "))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"SimpliMath"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", der, 0644); err != nil {
		return err
	}
	return writePEM(keyFile, "EC PRIVATE KEY", keyDER, 0600)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
