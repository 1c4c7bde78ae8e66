// Package cloud bootstraps a Cluster from a secure connect bundle or a
// cloud metadata service, instead of a user-supplied list of contact
// points.
package cloud

import (
	"archive/zip"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
)

// ConfigDataDC describes one datacenter entry in config_data.json: its
// proxy endpoint (every connection in a cloud deployment dials the same
// SNI-routed proxy) and the server name used for certificate verification.
type ConfigDataDC struct {
	ServerID     string `json:"server_id"`
	TLSServerTLS struct {
		Address    string `json:"address"`
		ServerName string `json:"server_name"`
	} `json:"tlsServer"`
}

// ConfigData is the parsed form of a bundle's config_data.json.
type ConfigData struct {
	Datacenters map[string]ConfigDataDC `json:"datacenters"`
}

// Bundle is a parsed secure connect bundle: the CA used to verify the
// proxy's certificate, the client cert/key pair presented during the TLS
// handshake, and the proxy connection metadata.
type Bundle struct {
	Config ConfigData
	TLS    *tls.Config
}

// These name the four members a secure connect bundle is required to
// contain.
const (
	fileCA     = "ca.crt"
	fileCert   = "cert"
	fileKey    = "key"
	fileConfig = "config_data.json"
)

// Load reads and parses a secure connect bundle ZIP from path, building a
// ready-to-use *tls.Config from its embedded CA and client identity.
func Load(path string) (*Bundle, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("cloud: opening bundle %s: %w", path, err)
	}
	defer r.Close()

	files := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("cloud: reading %s from bundle: %w", f.Name, err)
		}
		files[f.Name] = data
	}

	for _, name := range []string{fileCA, fileCert, fileKey, fileConfig} {
		if _, ok := files[name]; !ok {
			return nil, fmt.Errorf("cloud: bundle missing required member %q", name)
		}
	}

	var cfg ConfigData
	if err := json.Unmarshal(files[fileConfig], &cfg); err != nil {
		return nil, fmt.Errorf("cloud: parsing config_data.json: %w", err)
	}

	cert, err := tls.X509KeyPair(files[fileCert], files[fileKey])
	if err != nil {
		return nil, fmt.Errorf("cloud: parsing client cert/key: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(files[fileCA]) {
		return nil, fmt.Errorf("cloud: ca.crt contained no usable certificates")
	}

	return &Bundle{
		Config: cfg,
		TLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ContactPoints returns the proxy address and SNI server name to dial for
// every datacenter listed in the bundle, since a cloud deployment routes
// every Connection through one SNI-aware proxy rather than contacting
// nodes directly.
func (b *Bundle) ContactPoints() map[string]string {
	out := make(map[string]string, len(b.Config.Datacenters))
	for dc, entry := range b.Config.Datacenters {
		out[dc] = entry.TLSServerTLS.Address
	}
	return out
}

// TLSConfigFor clones the bundle's base TLS config with ServerName set for
// the given proxy endpoint, since the driver must present a distinct SNI
// name per datacenter even though every DC shares one proxy address family.
func (b *Bundle) TLSConfigFor(dc string) (*tls.Config, error) {
	entry, ok := b.Config.Datacenters[dc]
	if !ok {
		return nil, fmt.Errorf("cloud: unknown datacenter %q in bundle", dc)
	}
	cfg := b.TLS.Clone()
	cfg.ServerName = entry.TLSServerTLS.ServerName
	return cfg, nil
}
