package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookmarkd/internal/bookmarks"
	"github.com/patric-chuzhbe/bookmarkd/internal/logger"
	"github.com/patric-chuzhbe/bookmarkd/internal/session"
)

type listEvent struct {
	HTML string `json:"html"`
}

// getEvents streams list updates to the browser as server-sent events.
// Each connection owns one list controller: the controller loads,
// subscribes to the change feed, and reloads on every notification;
// closing the stream (leaving the page) tears the subscription down so
// no listener outlives its view.
func (h *handler) getEvents(response http.ResponseWriter, request *http.Request) {
	flusher, ok := response.(http.Flusher)
	if !ok {
		http.Error(response, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess, _ := session.FromContext(request.Context())

	controller := bookmarks.New(h.db, h.feed, sess)
	defer controller.Close()

	if err := controller.Run(request.Context()); err != nil {
		http.Error(response, "subscription failed", http.StatusInternalServerError)
		return
	}

	response.Header().Set("Content-Type", "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-request.Context().Done():
			return
		case <-controller.Updates():
			if err := writeListEvent(response, controller); err != nil {
				logger.Log.Debugln("Error writing a list event: ", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeListEvent(response http.ResponseWriter, controller *bookmarks.Controller) error {
	var fragment bytes.Buffer
	data := indexPageData{Bookmarks: controller.Snapshot()}
	if err := pages.ExecuteTemplate(&fragment, "rows", data); err != nil {
		return err
	}

	payload, err := json.Marshal(listEvent{HTML: fragment.String()})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(response, "event: list\ndata: %s\n\n", payload)

	return err
}
