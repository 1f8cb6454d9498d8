package downloader

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/papertrans/internal/storage"
)

// Base URLs of the publisher helpers, overridable in tests.
var (
	arxivBase    = "https://arxiv.org"
	springerBase = "https://link.springer.com"
	ieeeBase     = "https://ieeexplore.ieee.org"
)

var (
	arxivIDRe = regexp.MustCompile(`^([a-z-]+(\.[A-Z]{2})?/\d{7}|\d{4}\.\d{4,5})(v\d+)?$`)
	ieeeIDRe  = regexp.MustCompile(`^\d+$`)
)

// FromArxiv downloads an arXiv paper by ID, e.g. 1706.03762 or
// hep-th/9901001, as arxiv_<id>.pdf.
func (d *Downloader) FromArxiv(ctx context.Context, id string) (*Result, error) {
	id = strings.TrimSpace(id)
	if !arxivIDRe.MatchString(id) {
		return nil, fmt.Errorf("%w: arXiv id %q", ErrInvalidURL, id)
	}
	return d.Download(ctx, arxivBase+"/pdf/"+id+".pdf", "arxiv_"+strings.ReplaceAll(id, "/", "_")+".pdf")
}

// FromSpringer downloads a Springer paper by DOI.
func (d *Downloader) FromSpringer(ctx context.Context, doi string) (*Result, error) {
	doi = strings.TrimSpace(doi)
	if !strings.HasPrefix(doi, "10.") || !strings.Contains(doi, "/") {
		return nil, fmt.Errorf("%w: DOI %q", ErrInvalidURL, doi)
	}
	return d.Download(ctx, springerBase+"/content/pdf/"+doi+".pdf", "springer_"+strings.ReplaceAll(doi, "/", "_")+".pdf")
}

// FromIEEE downloads an IEEE Xplore article by its numeric article ID.
func (d *Downloader) FromIEEE(ctx context.Context, articleID string) (*Result, error) {
	articleID = strings.TrimSpace(articleID)
	if !ieeeIDRe.MatchString(articleID) {
		return nil, fmt.Errorf("%w: IEEE article id %q", ErrInvalidURL, articleID)
	}
	return d.Download(ctx, ieeeBase+"/stamp/stamp.jsp?tp=&arnumber="+articleID, "ieee_"+articleID+".pdf")
}

// BatchItem is the outcome for one URL of a batch.
type BatchItem struct {
	URL    string  `json:"url"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BatchDownload fetches urls one after another. A failed URL is recorded
// and the batch continues; only context cancellation stops it early.
func (d *Downloader) BatchDownload(ctx context.Context, urls []string) []BatchItem {
	items := make([]BatchItem, 0, len(urls))
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			items = append(items, BatchItem{URL: u, Error: err.Error()})
			continue
		}
		d.log.Info("batch download", "index", i+1, "total", len(urls), "url", u)
		res, err := d.Download(ctx, u, "")
		if err != nil {
			d.log.Warn("batch item failed", "url", u, "error", err)
			items = append(items, BatchItem{URL: u, Error: err.Error()})
			continue
		}
		items = append(items, BatchItem{URL: u, Result: res})
	}
	return items
}

// IsDownloaded reports whether the object a URL would be stored under
// already exists. See ObjectNameFor for how the name is predicted.
func (d *Downloader) IsDownloaded(ctx context.Context, rawURL string) (bool, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return false, err
	}
	return storage.Exists(ctx, d.store, ObjectNameFor(rawURL))
}

// ObjectNameFor predicts the name Download stores rawURL under without
// fetching it. The content type is guessed from the URL's extension,
// falling back to PDF; a redirect or a landing page can still change the
// name Download picks.
func ObjectNameFor(rawURL string) string {
	contentType := "application/pdf"
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if guess := storage.ContentTypeFor(u.Path); storage.ExtensionFor(guess) == ext {
			contentType = guess
		}
	}
	return storage.SafeObjectName(rawURL, contentType)
}

// Statistics summarizes the bucket contents.
type Statistics struct {
	TotalFiles       int                  `json:"total_files"`
	TotalSize        int64                `json:"total_size"`
	TypeDistribution map[string]int       `json:"type_distribution"`
	RecentDownloads  []storage.ObjectInfo `json:"recent_downloads"`
}

const recentLimit = 10

func (d *Downloader) Statistics(ctx context.Context) (*Statistics, error) {
	objects, err := d.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	st := &Statistics{TypeDistribution: make(map[string]int)}
	for _, o := range objects {
		st.TotalFiles++
		st.TotalSize += o.Size
		st.TypeDistribution[strings.ToLower(path.Ext(o.Name))]++
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	if len(objects) > recentLimit {
		objects = objects[:recentLimit]
	}
	st.RecentDownloads = objects
	if st.RecentDownloads == nil {
		st.RecentDownloads = []storage.ObjectInfo{}
	}
	return st, nil
}
