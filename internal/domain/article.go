package domain

import (
	"strings"
	"time"
)

// Candidate is a raw feed entry eligible for processing. Link is the unique
// source identifier.
type Candidate struct {
	Title       string
	Link        string
	Summary     string
	Source      string
	PublishedAt time.Time
}

// ScrapedContent is the full text retrieved for a candidate link.
type ScrapedContent struct {
	FullText string
}

// ResearchResult is the opaque enrichment payload produced for a candidate.
type ResearchResult struct {
	Notes string
}

// Empty reports whether the research produced nothing usable.
func (r ResearchResult) Empty() bool {
	return strings.TrimSpace(r.Notes) == ""
}

// Draft is the in-progress article as it moves through enrichment stages.
type Draft struct {
	Title   string
	Summary string
	Content string
}

// PublishedArticle is the persisted form returned by the content store.
type PublishedArticle struct {
	ID          string
	Title       string
	Summary     string
	Content     string
	Slug        string
	URL         string
	CoverImage  string
	SourceLink  string
	PublishedAt time.Time
}

// RelatedLink references an already published article on our own site.
type RelatedLink struct {
	Title string
	URL   string
}

// DistributionTask describes the social-distribution work handed to the queue.
type DistributionTask struct {
	TaskID     string    `json:"task_id"`
	ArticleURL string    `json:"article_url"`
	Title      string    `json:"title"`
	Posts      []string  `json:"posts"`
	CreatedAt  time.Time `json:"created_at"`
}

// Report summarizes one orchestrator run. Processed, Skipped and Total form the
// public contract; the remaining counters break down benign stops.
type Report struct {
	RunID          string
	Total          int
	Processed      int
	Skipped        int
	Duplicates     int
	AlreadyClaimed int
	Excluded       int
	Aborted        bool
	AbortReason    string
	StartedAt      time.Time
	FinishedAt     time.Time
}
