package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; GBSalesMachine/1.0)"
	maxContentRunes = 5000
	maxPageBytes    = 2 << 20
	fetchTimeout    = 15 * time.Second
	maxRedirects    = 5
	// unfetchable is what the model sees when the site could not be read.
	unfetchable = "Unable to fetch website content"
)

// ErrBlockedAddress is returned when a site resolves to an address that is
// not on the public internet.
var ErrBlockedAddress = errors.New("address not allowed")

// Fetcher returns the visible text of a web page.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher uses c as is. A nil client gets one that only dials public
// addresses, checked after DNS resolution and on every redirect hop.
func NewHTTPFetcher(c *http.Client) *HTTPFetcher {
	if c == nil {
		c = publicClient()
	}
	return &HTTPFetcher{client: c}
}

func publicClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   publicOnly,
	}
	return &http.Client{
		Timeout: fetchTimeout,
		Transport: &http.Transport{
			// No proxy: the proxy would dial on our behalf and skip the check.
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// publicOnly is a net.Dialer Control hook; address is the resolved ip:port.
func publicOnly(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !isPublic(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isPublic(a netip.Addr) bool {
	a = a.Unmap()
	switch {
	case !a.IsValid(),
		a.IsUnspecified(),
		a.IsLoopback(),
		a.IsPrivate(),
		a.IsLinkLocalUnicast(),
		a.IsLinkLocalMulticast(),
		a.IsInterfaceLocalMulticast(),
		a.IsMulticast(),
		sharedAddressSpace.Contains(a):
		return false
	}
	if a.Is4() && a.As4()[0] == 0 {
		return false
	}
	return true
}

func (f *HTTPFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return HTMLToText(string(body)), nil
}

// HTMLToText returns the page's visible text with entities decoded and
// whitespace collapsed, capped at 5000 characters. Script, style, noscript
// and template contents are dropped.
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return capRunes(strings.Join(strings.Fields(b.String()), " "))
		case html.StartTagToken:
			if hidden(z) {
				skip++
			}
		case html.EndTagToken:
			if hidden(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func hidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	return false
}

func capRunes(s string) string {
	if r := []rune(s); len(r) > maxContentRunes {
		return string(r[:maxContentRunes])
	}
	return s
}
