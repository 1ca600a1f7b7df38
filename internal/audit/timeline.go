package audit

import "time"

// TimelineFilters menampung filter untuk audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	OrderID  int64
	Entity   string
	EntityID int64
	ActorID  int64
	Action   string
	Page     int
	PageSize int
}

// TimelineRow mewakili satu baris audit_trail.
type TimelineRow struct {
	ID          int64     `json:"id"`
	At          time.Time `json:"occurred_at"`
	OrderID     int64     `json:"order_id,omitempty"`
	Entity      string    `json:"entity"`
	EntityID    int64     `json:"entity_id"`
	ActorID     int64     `json:"actor_id,omitempty"`
	Action      string    `json:"change_type"`
	Field       string    `json:"field_name,omitempty"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	Description string    `json:"description"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
