package export

import (
	"encoding/xml"
	"time"

	"github.com/pkg/errors"

	"jobboard/api/internal/store"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

// BuildSitemap lists the home and listing pages of every locale, then every
// published job once per locale.
func BuildSitemap(baseURL string, locales []string, jobs []store.SitemapEntry, now time.Time) ([]byte, error) {
	set := urlSet{XMLNS: sitemapNS}
	stamp := lastMod(now)
	for _, locale := range locales {
		set.URLs = append(set.URLs,
			sitemapURL{Loc: baseURL + "/" + locale, LastMod: stamp, ChangeFreq: "daily", Priority: 1.0},
			sitemapURL{Loc: baseURL + "/" + locale + "/jobs", LastMod: stamp, ChangeFreq: "hourly", Priority: 0.9},
		)
	}
	for _, job := range jobs {
		for _, locale := range locales {
			set.URLs = append(set.URLs, sitemapURL{
				Loc:        baseURL + "/" + locale + "/jobs/" + job.Slug,
				LastMod:    lastMod(job.UpdatedAt),
				ChangeFreq: "weekly",
				Priority:   0.8,
			})
		}
	}
	return encodeSitemap(set)
}

// BasicSitemap is served when the job list cannot be read.
func BasicSitemap(baseURL string, now time.Time) ([]byte, error) {
	return encodeSitemap(urlSet{XMLNS: sitemapNS, URLs: []sitemapURL{
		{Loc: baseURL, LastMod: lastMod(now), ChangeFreq: "daily", Priority: 1.0},
	}})
}

func lastMod(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func encodeSitemap(set urlSet) ([]byte, error) {
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode sitemap")
	}
	return append([]byte(xml.Header), out...), nil
}
