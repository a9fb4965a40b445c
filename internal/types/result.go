package types

// Result is the single definitive outcome of a streamed run. Local is set
// when the client synthesized the result instead of the server reporting it.
type Result struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
	Local   bool           `json:"-"`
}
