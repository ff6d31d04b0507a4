package model

import (
	"fmt"
	"sort"
	"strings"

	"thought-pipeline/internal/domain"
)

type MainCategory string

const (
	CategoryTask      MainCategory = "task"
	CategoryIdea      MainCategory = "idea"
	CategoryReminder  MainCategory = "reminder"
	CategoryEvent     MainCategory = "event"
	CategoryNote      MainCategory = "note"
	CategoryQuestion  MainCategory = "question"
	CategoryJournal   MainCategory = "journal"
	CategoryReference MainCategory = "reference"
)

// Presentation is the display metadata attached to a main category.
type Presentation struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

var presentations = map[MainCategory]Presentation{
	CategoryTask:      {Label: "Task", Color: "#2563eb", Icon: "check-square"},
	CategoryIdea:      {Label: "Idea", Color: "#f59e0b", Icon: "lightbulb"},
	CategoryReminder:  {Label: "Reminder", Color: "#dc2626", Icon: "bell"},
	CategoryEvent:     {Label: "Event", Color: "#7c3aed", Icon: "calendar"},
	CategoryNote:      {Label: "Note", Color: "#6b7280", Icon: "file-text"},
	CategoryQuestion:  {Label: "Question", Color: "#0891b2", Icon: "help-circle"},
	CategoryJournal:   {Label: "Journal", Color: "#16a34a", Icon: "book-open"},
	CategoryReference: {Label: "Reference", Color: "#9333ea", Icon: "bookmark"},
}

// MainCategories returns the closed set of main categories in stable order.
func MainCategories() []MainCategory {
	out := make([]MainCategory, 0, len(presentations))
	for c := range presentations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ParseMainCategory(s string) (MainCategory, error) {
	c := MainCategory(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := presentations[c]; !ok {
		return "", fmt.Errorf("category %q: %w", s, domain.ErrInvalidArgument)
	}
	return c, nil
}

// Category is a closed variant: Main is always one of the known categories and the
// presentation follows from it.
type Category struct {
	Main        MainCategory `json:"main"`
	Subcategory string       `json:"subcategory,omitempty"`
	Display     Presentation `json:"display"`
}

// NewCategory builds a category from classifier output. Unknown main values fall back to note.
func NewCategory(main, subcategory string) Category {
	c, err := ParseMainCategory(main)
	if err != nil {
		c = CategoryNote
	}
	return Category{
		Main:        c,
		Subcategory: strings.TrimSpace(subcategory),
		Display:     presentations[c],
	}
}

func (c Category) IsZero() bool { return c.Main == "" }

const maxTags = 10

// NormalizeTags lowercases, trims, strips a leading '#', dedups and caps the tag set.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		t = strings.Join(strings.Fields(t), "-")
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
