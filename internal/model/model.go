package model

// Event is one normalized timeline record derived from one spreadsheet row.
// It is rebuilt from scratch on every pipeline run.
type Event struct {
	// Row is the 1-based worksheet row the event came from.
	Row int `json:"row"`

	// Date is "YYYY.MM.DD", "YYYY.MM.DD HH:MM", or the cell's raw text.
	Date string `json:"date"`

	Artist    string `json:"artist"`
	EventName string `json:"event_name"`
	Location  string `json:"location"`
	Seat      string `json:"seat"`

	// ImageURL is empty, a local path ("images/x.jpg"), or an absolute URL.
	ImageURL string `json:"image_url"`
}
