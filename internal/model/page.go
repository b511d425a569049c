package model

// Page is a fetched web page reduced to plain text.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
}

// Empty reports whether the page carries no usable text.
func (p Page) Empty() bool {
	return p.Text == ""
}
