package jobs

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Segment status values, in lifecycle order.
const (
	SegmentPending         = "pending"
	SegmentGeneratingImage = "generating_image"
	SegmentImageReady      = "image_ready"
	SegmentGeneratingVideo = "generating_video"
	SegmentVideoReady      = "video_ready"
	SegmentFailed          = "failed"
)

// Segment is the persisted snapshot of one segment's generation state.
// While generation is in flight the pipeline owns the authoritative copy;
// snapshots land here at the image-ready and video-ready checkpoints.
type Segment struct {
	Index  int    `json:"index"`
	Lyrics string `json:"lyrics"`
	Image  string `json:"image,omitempty"`
	Video  string `json:"video,omitempty"`
	Status string `json:"status"`
}

// VideoJob is a persisted video generation job record.
type VideoJob struct {
	ID              string    `json:"id"`
	SongTitle       string    `json:"song_title"`
	Artist          string    `json:"artist"`
	Status          string    `json:"status"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message,omitempty"`
	VideoFile       string    `json:"video_file,omitempty"`
	Segments        []Segment `json:"segments"`
	CancelRequested bool      `json:"cancel_requested"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// NewJobID returns a new unique job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// NewID returns a short random identifier for non-persistent uses
// such as request IDs.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
