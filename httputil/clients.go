package httputil

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"deal_watcher/config"
)

const maxErrorBody = 4 << 10

// Clients holds one HTTP client per upstream so timeouts and proxies stay per-service.
type Clients struct {
	CRM        *http.Client // proxied when PROXY_URL is set
	Profitbase *http.Client
}

func NewClients(timeout time.Duration, proxyCfg *config.ProxyConfig) *Clients {
	crm := &http.Client{Timeout: timeout}

	if proxyCfg != nil && proxyCfg.URL != "" {
		proxyURL, err := url.Parse(proxyCfg.URL)
		if err != nil {
			log.Printf("HTTP: ignoring invalid proxy url: %v", err)
		} else {
			crm.Transport = &http.Transport{
				Proxy:             http.ProxyURL(proxyURL),
				ForceAttemptHTTP2: true,
			}
		}
	}

	return &Clients{
		CRM:        crm,
		Profitbase: &http.Client{Timeout: timeout},
	}
}

// ErrorBody reads a bounded prefix of a failed response body for error messages.
func ErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return string(body)
}
