package server

import "github.com/translatekit/chatbridge/tools/glossary"

// translateRequest is the chunked-translation stream request body.
type translateRequest struct {
	Text           string           `json:"text"`
	ChatSurfaceURL string           `json:"chatSurfaceUrl,omitempty"`
	PromptPrefix   string           `json:"promptPrefix,omitempty"`
	Glossary       []glossary.Entry `json:"glossary,omitempty"`
}

// SSE frames. startFrame and endFrame ride named events; progressFrame
// is an unnamed data frame.
type startFrame struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

type progressFrame struct {
	Partial  string  `json:"partial"`
	Chunk    int     `json:"chunk"`
	Total    int     `json:"total"`
	Progress float64 `json:"progress"`
}

type errorFrame struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

type endFrame struct {
	Translation string `json:"translation"`
	RequestID   string `json:"requestId"`
}

type chapterRequest struct {
	URL string `json:"url"`
}

type chapterResponse struct {
	Success     bool   `json:"success"`
	ChapterName string `json:"chapterName"`
	RawText     string `json:"rawText"`
	PrevLink    string `json:"prevLink,omitempty"`
	NextLink    string `json:"nextLink,omitempty"`
}

// messageResponse is the shared `{success, message}` envelope for the
// session endpoints and failure paths.
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
