// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines domain models and types used throughout the application
// including content items, workflow history entries, campaigns and events.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the primary editorial-pipeline state of a content item.
type Status string

// Content statuses
const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusInReview      Status = "in_review"
	StatusApproved      Status = "approved"
	StatusScheduled     Status = "scheduled"
	StatusPublished     Status = "published"
	StatusArchived      Status = "archived"
	StatusRejected      Status = "rejected"
)

// AllStatuses lists every status in pipeline order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPendingReview,
	StatusInReview,
	StatusApproved,
	StatusScheduled,
	StatusPublished,
	StatusArchived,
	StatusRejected,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Stage is the secondary, finer-grained progress marker within a status.
type Stage string

// Workflow stages, in pipeline order.
const (
	StageCreation            Stage = "creation"
	StageSectionEditorReview Stage = "section_editor_review"
	StageFactChecking        Stage = "fact_checking"
	StageCopyEditing         Stage = "copy_editing"
	StageFinalReview         Stage = "final_review"
	StageScheduling          Stage = "scheduling"
	StagePublished           Stage = "published"
)

var stageOrder = map[Stage]int{
	StageCreation:            0,
	StageSectionEditorReview: 1,
	StageFactChecking:        2,
	StageCopyEditing:         3,
	StageFinalReview:         4,
	StageScheduling:          5,
	StagePublished:           6,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Rank returns the position of the stage in the pipeline, or -1 if unknown.
func (s Stage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// Kind identifies the concrete content type behind a ContentItem.
type Kind string

// Content kinds
const (
	KindArticle      Kind = "article"
	KindVideoArticle Kind = "video_article"
	KindList         Kind = "list"
	KindDownload     Kind = "download"
)

// Valid reports whether k is a known content kind.
func (k Kind) Valid() bool {
	switch k {
	case KindArticle, KindVideoArticle, KindList, KindDownload:
		return true
	}
	return false
}

// Promotion holds the attributes that feed the promoted display slots.
type Promotion struct {
	Featured          bool       `json:"featured"`
	Pinned            bool       `json:"pinned"`
	Trending          bool       `json:"trending"`
	BoostLevel        int        `json:"boost_level"`
	SponsoredUntil    *time.Time `json:"sponsored_until,omitempty"`
	CampaignID        *string    `json:"campaign_id,omitempty"`
	PromotionCategory string     `json:"promotion_category,omitempty"`
	Seasonal          bool       `json:"seasonal"`
	ShowOnHomepage    bool       `json:"show_on_homepage"`
}

// IsSponsoredAt reports whether the sponsorship window is open at now.
func (p Promotion) IsSponsoredAt(now time.Time) bool {
	return p.SponsoredUntil != nil && p.SponsoredUntil.After(now)
}

// ContentItem is the shape shared by every publishable content type.
type ContentItem struct {
	ID                   string     `json:"id"`
	Kind                 Kind       `json:"kind"`
	Title                string     `json:"title"`
	Slug                 string     `json:"slug"`
	AuthorID             string     `json:"author_id"`
	Status               Status     `json:"status"`
	WorkflowStage        Stage      `json:"workflow_stage"`
	ScheduledPublishDate *time.Time `json:"scheduled_publish_date,omitempty"`
	PublishDate          *time.Time `json:"publish_date,omitempty"`
	Promotion
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Details is the stored JSON of the kind-specific fields. Wrap decodes it.
	Details json.RawMessage `json:"-"`
}

// IsPublished returns true if the item is live.
func (c *ContentItem) IsPublished() bool {
	return c.Status == StatusPublished
}

// IsDueAt reports whether a scheduled item should be published at now.
func (c *ContentItem) IsDueAt(now time.Time) bool {
	return c.Status == StatusScheduled &&
		c.ScheduledPublishDate != nil &&
		!c.ScheduledPublishDate.After(now)
}

// Publishable is implemented by every concrete content type governed by the
// editorial workflow. The workflow only touches the shared ContentItem.
type Publishable interface {
	Kind() Kind
	Item() *ContentItem
	details() any
}

// ArticleDetails are the fields specific to an Article.
type ArticleDetails struct {
	Subtitle    string `json:"subtitle,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	ReadingTime int    `json:"reading_time,omitempty"`
}

// Article is a long-form text article.
type Article struct {
	ContentItem
	ArticleDetails
}

// Kind implements Publishable.
func (a *Article) Kind() Kind { return KindArticle }

// Item implements Publishable.
func (a *Article) Item() *ContentItem { return &a.ContentItem }

func (a *Article) details() any { return &a.ArticleDetails }

// VideoDetails are the fields specific to a VideoArticle.
type VideoDetails struct {
	VideoURL string `json:"video_url,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// VideoArticle is an article built around an embedded video.
type VideoArticle struct {
	ContentItem
	VideoDetails
}

// Kind implements Publishable.
func (v *VideoArticle) Kind() Kind { return KindVideoArticle }

// Item implements Publishable.
func (v *VideoArticle) Item() *ContentItem { return &v.ContentItem }

func (v *VideoArticle) details() any { return &v.VideoDetails }

// ListDetails are the fields specific to a List.
type ListDetails struct {
	Year  int `json:"year,omitempty"`
	Items int `json:"items,omitempty"`
}

// List is a ranked list feature ("power list").
type List struct {
	ContentItem
	ListDetails
}

// Kind implements Publishable.
func (l *List) Kind() Kind { return KindList }

// Item implements Publishable.
func (l *List) Item() *ContentItem { return &l.ContentItem }

func (l *List) details() any { return &l.ListDetails }

// DownloadDetails are the fields specific to a Download.
type DownloadDetails struct {
	FileURL  string `json:"file_url,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Download is a downloadable asset (media kit, report, magazine issue).
type Download struct {
	ContentItem
	DownloadDetails
}

// Kind implements Publishable.
func (d *Download) Kind() Kind { return KindDownload }

// Item implements Publishable.
func (d *Download) Item() *ContentItem { return &d.ContentItem }

func (d *Download) details() any { return &d.DownloadDetails }

func newPublishable(item ContentItem) Publishable {
	switch item.Kind {
	case KindVideoArticle:
		return &VideoArticle{ContentItem: item}
	case KindList:
		return &List{ContentItem: item}
	case KindDownload:
		return &Download{ContentItem: item}
	default:
		return &Article{ContentItem: item}
	}
}

// Wrap returns the concrete Publishable for an item based on its kind, with
// the kind-specific fields decoded from item.Details.
func Wrap(item ContentItem) (Publishable, error) {
	p := newPublishable(item)
	if len(item.Details) > 0 {
		if err := json.Unmarshal(item.Details, p.details()); err != nil {
			return nil, fmt.Errorf("decoding %s details of %s: %w", item.Kind, item.ID, err)
		}
	}
	return p, nil
}

// NormalizeDetails checks raw against the fields of kind and returns their
// canonical encoding. Unknown fields are rejected; empty input yields "{}".
func NormalizeDetails(kind Kind, raw json.RawMessage) (json.RawMessage, error) {
	p := newPublishable(ContentItem{Kind: kind})
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p.details()); err != nil {
			return nil, fmt.Errorf("invalid %s details: %w", kind, err)
		}
	}
	return json.Marshal(p.details())
}
