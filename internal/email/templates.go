package email

import (
	"embed"
	"io/fs"
	"path"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/cockroachdb/errors"
)

//go:embed templates/*.hbs
var templateFS embed.FS

// Template names.
const (
	TplDigestText    = "digest.txt"
	TplDigestHTML    = "digest.html"
	TplBidPlaced     = "bid_placed.txt"
	TplBidAccepted   = "bid_accepted.txt"
	TplJobCompleted  = "job_completed.txt"
	TplMessagePosted = "message_posted.txt"
)

// Templates holds the parsed Handlebars templates embedded in the binary.
type Templates struct {
	baseURL string
	parsed  map[string]*raymond.Template
}

// NewTemplates parses every embedded template. baseURL is exposed to all
// templates as {{baseUrl}}.
func NewTemplates(baseURL string) (*Templates, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded templates")
	}

	t := &Templates{
		baseURL: strings.TrimRight(baseURL, "/"),
		parsed:  make(map[string]*raymond.Template, len(entries)),
	}
	for _, e := range entries {
		src, err := templateFS.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read template %s", e.Name())
		}
		tpl, err := raymond.Parse(string(src))
		if err != nil {
			return nil, errors.Wrapf(err, "parse template %s", e.Name())
		}
		t.parsed[strings.TrimSuffix(e.Name(), ".hbs")] = tpl
	}
	return t, nil
}

// Render executes the named template with data.
func (t *Templates) Render(name string, data map[string]any) (string, error) {
	tpl, ok := t.parsed[name]
	if !ok {
		return "", errors.Newf("unknown email template %q", name)
	}

	ctx := make(map[string]any, len(data)+1)
	for k, v := range data {
		ctx[k] = v
	}
	ctx["baseUrl"] = t.baseURL

	out, err := tpl.Exec(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "render template %s", name)
	}
	return out, nil
}
