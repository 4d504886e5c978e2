package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/multierr"

	"news_digest/internal/model"
)

// Blacklist excludes items by the domain of their URL.
type Blacklist struct {
	domains map[string]struct{}
}

// NewBlacklist normalizes domains and rejects entries that are not bare
// host names.
func NewBlacklist(domains []string) (*Blacklist, error) {
	b := &Blacklist{domains: make(map[string]struct{}, len(domains))}

	var errs error
	for i, raw := range domains {
		d, err := normalizeDomain(raw)
		if err != nil {
			errs = multierr.Append(errs, &model.ConfigError{
				Entry: fmt.Sprintf("blacklisted_domains[%d] %q", i, raw),
				Err:   err,
			})
			continue
		}
		b.domains[d] = struct{}{}
	}

	if errs != nil {
		return nil, errs
	}
	return b, nil
}

// IsBlacklisted reports whether the host of rawURL equals or is a subdomain
// of a blacklisted domain. Items without a URL are never blacklisted. An
// unparseable URL is not blacklisted; the returned error is for logging.
func (b *Blacklist) IsBlacklisted(rawURL string) (bool, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || len(b.domains) == 0 {
		return false, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false, fmt.Errorf("url %q has no host", rawURL)
	}

	for {
		if _, ok := b.domains[host]; ok {
			return true, nil
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false, nil
		}
		host = host[i+1:]
	}
}

// Len returns the number of blacklisted domains.
func (b *Blacklist) Len() int {
	return len(b.domains)
}

func normalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.Trim(d, ".")
	switch {
	case d == "":
		return "", errors.New("empty domain")
	case strings.Contains(d, "://"):
		return "", errors.New("must be a domain, not a URL")
	case strings.ContainsAny(d, "/:?#@ \t"):
		return "", errors.New("must be a bare domain without path, port or spaces")
	}
	return d, nil
}
