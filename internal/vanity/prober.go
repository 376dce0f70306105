package vanity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// userAgent is sent on every vanity probe so server operators can see
// which tool is making the request.
const userAgent = "go-bitbake-modvcs/1 (+https://github.com/go-bitbake/modvcs)"

// goImport is one parsed `<meta name="go-import" content="prefix vcs url">`
// tag.
type goImport struct {
	Prefix string
	VCS    string
	URL    string
}

// Prober performs the live `?go-get=1` HTTP lookup against a module's
// own domain.
type Prober interface {
	Probe(ctx context.Context, modulePath string) (*Candidate, error)
}

// HTTPProber is the real Prober, fetching https://<module_path>?go-get=1
// and parsing its go-import meta tags.
type HTTPProber struct {
	Client *http.Client
}

// NewHTTPProber builds an HTTPProber; a nil client uses http.DefaultClient.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{Client: client}
}

// Probe fetches the vanity page and chooses the go-import entry with the
// longest prefix that is equal to, or a path-prefix of, modulePath.
func (p *HTTPProber) Probe(ctx context.Context, modulePath string) (*Candidate, error) {
	url := "https://" + modulePath + "?go-get=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vanity: %s returned status %d", url, resp.StatusCode)
	}

	imports, err := parseGoImports(resp.Body)
	if err != nil {
		return nil, err
	}

	return chooseGoImport(modulePath, imports), nil
}

// parseGoImports extracts every go-import meta tag from r.
func parseGoImports(r io.Reader) ([]goImport, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("vanity: parse html: %w", err)
	}

	var imports []goImport
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			if gi, ok := goImportFromMeta(n); ok {
				imports = append(imports, gi)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return imports, nil
}

func goImportFromMeta(n *html.Node) (goImport, bool) {
	var name, content string
	for _, a := range n.Attr {
		switch a.Key {
		case "name":
			name = a.Val
		case "content":
			content = a.Val
		}
	}
	if name != "go-import" {
		return goImport{}, false
	}
	fields := strings.Fields(content)
	if len(fields) != 3 {
		return goImport{}, false
	}
	return goImport{Prefix: fields[0], VCS: fields[1], URL: fields[2]}, true
}

// chooseGoImport picks the entry with the longest prefix that equals
// modulePath or is a proper path-prefix of it.
func chooseGoImport(modulePath string, imports []goImport) *Candidate {
	var best *goImport
	for i := range imports {
		gi := &imports[i]
		if gi.Prefix != modulePath && !strings.HasPrefix(modulePath, gi.Prefix+"/") {
			continue
		}
		if best == nil || len(gi.Prefix) > len(best.Prefix) {
			best = gi
		}
	}
	if best == nil {
		return nil
	}

	return &Candidate{URL: best.URL, Subdir: RecalculateSubdir(modulePath, best.URL)}
}
