package pipeline

import "time"

// Request is a single text-processing job as accepted by the API surface.
type Request struct {
	Text         string                 `json:"text" validate:"required,min=10,max=10000"`
	Operation    string                 `json:"operation" validate:"required,oneof=summarize sentiment key_points questions qa"`
	Question     string                 `json:"question,omitempty"`
	Options      map[string]interface{} `json:"options,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// Response is returned for a single processed item.
type Response struct {
	Operation         string            `json:"operation"`
	Success           bool              `json:"success"`
	Result            string            `json:"result,omitempty"`
	Sentiment         *SentimentResult  `json:"sentiment,omitempty"`
	KeyPoints         []string          `json:"key_points,omitempty"`
	Questions         []string          `json:"questions,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ProcessingTimeMs  int64             `json:"processing_time_ms"`
	Timestamp         time.Time         `json:"timestamp"`
	CacheHit          bool              `json:"cache_hit"`
}

// cachedPayload is what actually gets stored in the cache: the response
// without cache_hit (which is always false for a freshly computed value)
// and without a processing-time measurement tied to the original request.
type cachedPayload struct {
	Operation string            `json:"operation"`
	Result    string            `json:"result,omitempty"`
	Sentiment *SentimentResult  `json:"sentiment,omitempty"`
	KeyPoints []string          `json:"key_points,omitempty"`
	Questions []string          `json:"questions,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
