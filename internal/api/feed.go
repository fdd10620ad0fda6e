package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/nerrad567/feedsync-core/internal/signal"
)

// FeedRequest is the JSON body of POST /feed.
type FeedRequest struct {
	Text string `json:"text"`
}

// handlePostFeed replaces the latest feed text. It accepts either a JSON
// FeedRequest or a text/plain body.
func (s *Server) handlePostFeed(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "signal source does not accept HTTP text")
		return
	}

	text, err := readFeedText(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.feed.Set(text); err != nil {
		if errors.Is(err, signal.ErrEmptyText) {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "text must not be empty")
			return
		}
		writeInternalError(w, "failed to store text")
		return
	}

	_, at, _ := s.feed.Latest()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":   true,
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	})
}

func readFeedText(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to JSON
	if mediaType == "text/plain" {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return "", errors.New("failed to read body")
		}
		return string(b), nil
	}

	var req FeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}
	return req.Text, nil
}
