package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/pkg/errors"

	"jobboard/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var jobTemplate = template.Must(template.New("job.html").Funcs(template.FuncMap{
	"join":       strings.Join,
	"formatDate": formatDate,
}).ParseFS(templateFS, "templates/job.html"))

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006")
}

// PageData is the input of the job detail template.
type PageData struct {
	Job       store.Job
	Related   []store.Job
	Locale    string
	BaseURL   string
	Canonical string
}

// JobPosting is the schema.org block search engines read for job listings.
type JobPosting struct {
	Context        string       `json:"@context"`
	Type           string       `json:"@type"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	DatePosted     time.Time    `json:"datePosted"`
	ValidThrough   time.Time    `json:"validThrough"`
	EmploymentType string       `json:"employmentType"`
	HiringOrg      organization `json:"hiringOrganization"`
	JobLocation    place        `json:"jobLocation"`
}

type organization struct {
	Type   string `json:"@type"`
	Name   string `json:"name"`
	SameAs string `json:"sameAs"`
}

type place struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

// SEOTitle falls back to the job title when no meta title was set.
func (d PageData) SEOTitle() string {
	if d.Job.MetaTitle != "" {
		return d.Job.MetaTitle
	}
	return d.Job.Title
}

func (d PageData) SEODescription() string {
	if d.Job.MetaDescription != "" {
		return d.Job.MetaDescription
	}
	return d.Job.ShortDescription
}

// Sections returns the non-empty content fields in page order. They are
// admin-authored markup and render unescaped.
func (d PageData) Sections() []template.HTML {
	var out []template.HTML
	for _, s := range []string{d.Job.Description, d.Job.ApplicationProcess, d.Job.ImportantDates, d.Job.HowToApply} {
		if strings.TrimSpace(s) != "" {
			out = append(out, template.HTML(s))
		}
	}
	return out
}

func (d PageData) Posting() JobPosting {
	return JobPosting{
		Context:        "https://schema.org/",
		Type:           "JobPosting",
		Title:          d.Job.Title,
		Description:    d.Job.ShortDescription,
		DatePosted:     d.Job.PublishDate,
		ValidThrough:   d.Job.ExpiryDate,
		EmploymentType: d.Job.JobType,
		HiringOrg:      organization{Type: "Organization", Name: "JobMilegi.in", SameAs: d.BaseURL},
		JobLocation:    place{Type: "Place", Name: d.Job.Location},
	}
}

// RenderJobHTML renders the detail page for one job.
func RenderJobHTML(data PageData) (string, error) {
	var buf bytes.Buffer
	if err := jobTemplate.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render job page")
	}
	return buf.String(), nil
}
