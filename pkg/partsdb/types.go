package partsdb

import (
	"context"
	"time"
)

// Embedder turns text into a similarity vector. The catalog never generates
// vectors itself; indexing is skipped when no embedder is configured.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Part is a cataloged item keyed by its PS number.
type Part struct {
	ID                 int64   `json:"-" yaml:"-"`
	PSNumber           string  `json:"ps_number" yaml:"ps_number"`
	Name               string  `json:"part_name" yaml:"part_name"`
	PartType           string  `json:"part_type,omitempty" yaml:"part_type"`
	ManufacturerNumber string  `json:"manufacturer_part_number,omitempty" yaml:"manufacturer_part_number"`
	Manufacturer       string  `json:"part_manufacturer,omitempty" yaml:"part_manufacturer"`
	Price              float64 `json:"part_price" yaml:"part_price"`
	Description        string  `json:"part_description,omitempty" yaml:"part_description"`
	InstallDifficulty  string  `json:"install_difficulty,omitempty" yaml:"install_difficulty"`
	InstallTime        string  `json:"install_time,omitempty" yaml:"install_time"`
	InstallVideoURL    string  `json:"install_video_url,omitempty" yaml:"install_video_url"`
	Rating             float64 `json:"average_rating,omitempty" yaml:"average_rating"`
	NumReviews         int     `json:"num_reviews,omitempty" yaml:"num_reviews"`
	ApplianceType      string  `json:"appliance_type,omitempty" yaml:"appliance_type"`
	Brand              string  `json:"brand,omitempty" yaml:"brand"`
	Availability       string  `json:"availability,omitempty" yaml:"availability"`
	URL                string  `json:"part_url,omitempty" yaml:"part_url"`
}

// Compatibility is one flat (part, model) relation.
type Compatibility struct {
	PSNumber    string `json:"ps_number" yaml:"ps_number"`
	ModelNumber string `json:"model_number" yaml:"model_number"`
	Brand       string `json:"brand,omitempty" yaml:"brand"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Symptom aggregates repair knowledge for one problem of one appliance type.
type Symptom struct {
	ApplianceType string   `json:"appliance_type" yaml:"appliance_type"`
	Name          string   `json:"symptom" yaml:"symptom"`
	Description   string   `json:"symptom_description,omitempty" yaml:"symptom_description"`
	Percentage    float64  `json:"percentage" yaml:"percentage"`
	PartTypes     []string `json:"parts" yaml:"parts"`
	Difficulty    string   `json:"difficulty,omitempty" yaml:"difficulty"`
	VideoURL      string   `json:"video_url,omitempty" yaml:"video_url"`
	SymptomURL    string   `json:"symptom_url,omitempty" yaml:"symptom_url"`
}

type RepairInstruction struct {
	ApplianceType string   `json:"appliance_type" yaml:"appliance_type"`
	Symptom       string   `json:"symptom" yaml:"symptom"`
	PartType      string   `json:"part_type" yaml:"part_type"`
	Steps         []string `json:"instructions" yaml:"instructions"`
	CategoryURL   string   `json:"part_category_url,omitempty" yaml:"part_category_url"`
}

type TextKind string

const (
	KindQnA    TextKind = "qna"
	KindStory  TextKind = "repair_story"
	KindReview TextKind = "review"
)

// Annotation is a question/answer pair, repair story or review attached to a part.
// Title holds the question, story title or review headline; Body holds the
// answer, instructions or review text.
type Annotation struct {
	ID          int64    `json:"-" yaml:"-"`
	Kind        TextKind `json:"kind" yaml:"kind"`
	PSNumber    string   `json:"ps_number" yaml:"ps_number"`
	LocalID     string   `json:"local_id,omitempty" yaml:"local_id"`
	Title       string   `json:"title,omitempty" yaml:"title"`
	Body        string   `json:"body" yaml:"body"`
	Author      string   `json:"author,omitempty" yaml:"author"`
	ModelNumber string   `json:"model_number,omitempty" yaml:"model_number"`
	Difficulty  string   `json:"difficulty,omitempty" yaml:"difficulty"`
	RepairTime  string   `json:"repair_time,omitempty" yaml:"repair_time"`
	Rating      float64  `json:"rating,omitempty" yaml:"rating"`
	Helpful     int      `json:"helpful,omitempty" yaml:"helpful"`
	Verified    bool     `json:"verified,omitempty" yaml:"verified"`
}

func (a Annotation) text() string {
	if a.Title == "" {
		return a.Body
	}
	return a.Title + "\n" + a.Body
}

// Bundle is everything known about one part, as produced by a live fetch.
type Bundle struct {
	Part        Part            `json:"part"`
	Models      []Compatibility `json:"compatible_models"`
	Annotations []Annotation    `json:"annotations"`
	FetchedAt   time.Time       `json:"fetched_at"`
	Source      string          `json:"source,omitempty"`
}

// Texts returns the bundle's annotations of one kind, in fetch order.
func (b *Bundle) Texts(kind TextKind) []Annotation {
	var out []Annotation
	for _, a := range b.Annotations {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Model returns the bundle's relation for modelNumber, if any.
func (b *Bundle) Model(modelNumber string) (Compatibility, bool) {
	for _, m := range b.Models {
		if normalizeModel(m.ModelNumber) == normalizeModel(modelNumber) {
			return m, true
		}
	}
	return Compatibility{}, false
}

// PartHit is a part returned by similarity search.
type PartHit struct {
	Part  Part    `json:"part"`
	Score float64 `json:"score"`
}

type AnnotationHit struct {
	Annotation Annotation `json:"annotation"`
	Score      float64    `json:"score"`
}

// PartFilter narrows a structured browse over the catalog.
type PartFilter struct {
	Query         string
	ApplianceType string
	PartType      string
	Brand         string
	MaxPrice      float64
	InStockOnly   bool
	Limit         int
}

// ModelMatch is a distinct model number known to the relation table.
type ModelMatch struct {
	ModelNumber string `json:"model_number"`
	Brand       string `json:"brand,omitempty"`
	Description string `json:"description,omitempty"`
	PartCount   int    `json:"part_count"`
}
