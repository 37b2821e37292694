package store

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

var Categories = []string{
	"railway",
	"ssc",
	"bank",
	"police",
	"stateGovt",
	"defenseJobs",
	"teachingJobs",
	"engineeringJobs",
	"other",
}

var JobTypes = []string{
	"latest",
	"admitCard",
	"result",
	"answerKey",
	"notification",
	"exam",
	"recruitment",
}

// Job is one posting. The four content fields hold rich text markup and are
// stored as given.
type Job struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Slug               string    `json:"slug"`
	Subtitle           string    `json:"subtitle,omitempty"`
	ShortDescription   string    `json:"shortDescription"`
	Description        string    `json:"description,omitempty"`
	ApplicationProcess string    `json:"applicationProcess,omitempty"`
	ImportantDates     string    `json:"importantDates,omitempty"`
	HowToApply         string    `json:"howToApply,omitempty"`
	Tags               []string  `json:"tags"`
	Category           string    `json:"category"`
	JobType            string    `json:"jobType"`
	PublishDate        time.Time `json:"publishDate"`
	ExpiryDate         time.Time `json:"expiryDate"`
	Location           string    `json:"location"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	YoutubeURL         string    `json:"youtubeUrl,omitempty"`
	MetaTitle          string    `json:"metaTitle,omitempty"`
	MetaDescription    string    `json:"metaDescription,omitempty"`
	MetaKeywords       []string  `json:"metaKeywords"`
	IsPublished        bool      `json:"isPublished"`
	Views              int       `json:"views"`
	CreatedBy          string    `json:"createdBy,omitempty"`
	UpdatedBy          *string   `json:"updatedBy,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Summary drops the content fields, as the public listing does.
func (j Job) Summary() Job {
	j.Description = ""
	j.ApplicationProcess = ""
	j.ImportantDates = ""
	j.HowToApply = ""
	return j
}

type JobFilter struct {
	Category string
	JobType  string
	Search   string
	Page     int
	Limit    int
}

// Offset is the number of rows skipped for the filter's page.
func (f JobFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type SitemapEntry struct {
	Slug      string
	UpdatedAt time.Time
}

type Admin struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases title and joins its alphanumeric runs with dashes.
func Slugify(title string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
}
