package httpadmin

import (
	"crypto/tls"
	"net/url"

	"golang.org/x/crypto/acme/autocert"
)

// AutocertConfig builds a *tls.Config that fetches and renews a
// Let's Encrypt certificate for the admin listener's public hostname,
// used when the deployment's config.ServerConfig.PublicURL names an
// https:// address. cacheDir persists issued certificates across
// restarts so a redeploy doesn't re-trigger ACME rate limits.
func AutocertConfig(publicURL, cacheDir string) (*tls.Config, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return nil, err
	}
	host := u.Hostname()
	if host == "" {
		host = publicURL
	}
	mgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(host),
		Cache:      autocert.DirCache(cacheDir),
	}
	return mgr.TLSConfig(), nil
}
