package model

import "time"

type EntryType string

const (
	EntryTypeDiary    EntryType = "diary"
	EntryTypeSchedule EntryType = "schedule"
)

func (t EntryType) Valid() bool {
	return t == EntryTypeDiary || t == EntryTypeSchedule
}

type TimeType string

const (
	TimeTypePoint TimeType = "point"
	TimeTypeRange TimeType = "range"
)

func (t TimeType) Valid() bool {
	return t == TimeTypePoint || t == TimeTypeRange
}

// Entry is a diary or schedule record of one pet.
type Entry struct {
	ID          string     `json:"id"`
	Type        EntryType  `json:"type"`
	TimeType    TimeType   `json:"time_type"`
	Date        time.Time  `json:"date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Title       string     `json:"title,omitempty"`
	Body        string     `json:"body,omitempty"`
	Tags        []string   `json:"tags"`
	ImageURLs   []string   `json:"image_urls"`
	FriendIDs   []string   `json:"friend_ids,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
	CreatedBy   string     `json:"created_by"`
	UpdatedBy   string     `json:"updated_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EntrySummary is the projection of an Entry kept in its month bucket.
type EntrySummary struct {
	ID            string     `json:"id"`
	Date          time.Time  `json:"date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Title         string     `json:"title,omitempty"`
	Body          string     `json:"body,omitempty"`
	Type          EntryType  `json:"type"`
	TimeType      TimeType   `json:"time_type"`
	Tags          []string   `json:"tags"`
	FirstImageURL string     `json:"first_image_url,omitempty"`
	IsCompleted   *bool      `json:"is_completed,omitempty"`
}

// Summary projects e into its bucket form. Only the first image survives.
func (e Entry) Summary() EntrySummary {
	s := EntrySummary{
		ID:          e.ID,
		Date:        e.Date,
		EndDate:     e.EndDate,
		Title:       e.Title,
		Body:        e.Body,
		Type:        e.Type,
		TimeType:    e.TimeType,
		Tags:        e.Tags,
		IsCompleted: e.IsCompleted,
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if len(e.ImageURLs) > 0 {
		s.FirstImageURL = e.ImageURLs[0]
	}
	return s
}

// MonthlyEntrySummary is the body of an entry_months/{YYYY-MM} document.
type MonthlyEntrySummary struct {
	Entries []EntrySummary `json:"entries"`
}
