package api

import (
	"path/filepath"
	"time"

	"github.com/verseclip/verseclip/internal/jobs"
	"github.com/verseclip/verseclip/internal/lyrics"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State       string       `json:"state"`
	LastError   string       `json:"last_error,omitempty"`
	JobsRunning int          `json:"jobs_running"`
	ActiveJob   *JobResponse `json:"active_job,omitempty"`
	MediaTool   bool         `json:"media_tool_available"`
}

type CreateJobRequest struct {
	SongTitle string `json:"song_title"`
	Artist    string `json:"artist,omitempty"`
}

type SegmentResponse struct {
	Index  int    `json:"index"`
	Lyrics string `json:"lyrics"`
	Image  string `json:"image,omitempty"`
	Video  string `json:"video,omitempty"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID        string            `json:"id"`
	SongTitle string            `json:"song_title"`
	Artist    string            `json:"artist,omitempty"`
	Status    string            `json:"status"`
	Progress  int               `json:"progress"`
	Message   string            `json:"message,omitempty"`
	VideoFile string            `json:"video_file,omitempty"`
	Segments  []SegmentResponse `json:"segments"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type TrackResponse struct {
	TrackName  string  `json:"track_name"`
	ArtistName string  `json:"artist_name"`
	AlbumName  string  `json:"album_name,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Synced     bool    `json:"synced"`
}

type SuggestionsResponse struct {
	Tracks []TrackResponse `json:"tracks"`
}

type SearchResponse struct {
	Query  string `json:"query"`
	Lyrics string `json:"lyrics"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JobToResponse converts a job record to its API shape. Artifact paths are
// rewritten to /media/ URLs so clients never see server filesystem paths.
func JobToResponse(j *jobs.VideoJob) JobResponse {
	segments := make([]SegmentResponse, len(j.Segments))
	for i, s := range j.Segments {
		segments[i] = SegmentResponse{
			Index:  s.Index,
			Lyrics: s.Lyrics,
			Image:  mediaURL(s.Image),
			Video:  mediaURL(s.Video),
			Status: s.Status,
		}
	}
	return JobResponse{
		ID:        j.ID,
		SongTitle: j.SongTitle,
		Artist:    j.Artist,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.Message,
		VideoFile: mediaURL(j.VideoFile),
		Segments:  segments,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func TrackToResponse(t lyrics.Track) TrackResponse {
	return TrackResponse{
		TrackName:  t.TrackName,
		ArtistName: t.ArtistName,
		AlbumName:  t.AlbumName,
		Duration:   t.Duration,
		Synced:     t.SyncedLyrics != "",
	}
}

func mediaURL(path string) string {
	if path == "" {
		return ""
	}
	return "/media/" + filepath.Base(path)
}
