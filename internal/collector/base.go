package collector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/pkg/entropy"
)

const defaultFetchTimeout = 10 * time.Second

// Collection is the output of one collection cycle for a single source.
// Bags holds one partial count bag per endpoint, query or file; together
// they form one logical group and are folded by the compute engine.
type Collection struct {
	SourceID    string
	SourceType  string
	CollectedAt time.Time

	Bags []entropy.Bag

	// Err is non-nil if the collection itself failed (connectivity, auth,
	// parse, query). Schema problems are not collection failures; they are
	// reported by the estimator when the bags are computed.
	Err error
}

// Collector is implemented by every count source.
type Collector interface {
	Collect(ctx context.Context) (*Collection, error)
}

// New returns the Collector for the given source configuration.
// Collectors holding resources (postgres) also implement io.Closer.
func New(src config.Source) (Collector, error) {
	switch src.Type {
	case config.SourcePrometheus:
		client, err := buildHTTPClient(src)
		if err != nil {
			return nil, fmt.Errorf("collector %q: build http client: %w", src.ID, err)
		}
		return &promCollector{src: src, client: client}, nil
	case config.SourcePostgres:
		db, err := openPostgres(src.DSN())
		if err != nil {
			return nil, fmt.Errorf("collector %q: %w", src.ID, err)
		}
		return &pgCollector{src: src, db: db}, nil
	case config.SourceFile:
		kinds, err := parseKinds(src.Schema)
		if err != nil {
			return nil, fmt.Errorf("collector %q: %w", src.ID, err)
		}
		return &fileCollector{src: src, kinds: kinds}, nil
	default:
		return nil, fmt.Errorf("collector: unsupported type %q", src.Type)
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(src config.Source) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if src.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(src.Auth.CertFile, src.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if src.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(src.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", src.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: src.Auth,
		},
		Timeout: defaultFetchTimeout,
	}, nil
}

// fetchFamilies performs an HTTP GET to url and returns parsed metric families.
func fetchFamilies(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a Prometheus text exposition from r.
// A partial result with a non-fatal parse warning is still returned.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func parseKinds(names []string) ([]entropy.Kind, error) {
	kinds := make([]entropy.Kind, len(names))
	for i, name := range names {
		k, ok := entropy.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown field type %q", name)
		}
		kinds[i] = k
	}
	return kinds, nil
}

// newCollection initialises an empty Collection.
func newCollection(sourceID, sourceType string) *Collection {
	return &Collection{
		SourceID:    sourceID,
		SourceType:  sourceType,
		CollectedAt: time.Now().UTC(),
	}
}
