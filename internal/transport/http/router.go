package http

import (
	"github.com/gorilla/mux"
)

// NewRouter configures the media API and the static playback routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	m := r.PathPrefix("/medias").Subrouter()
	m.HandleFunc("/upload-video-hls", h.UploadVideoHLS).Methods("POST")
	m.HandleFunc("/upload-image", h.UploadImage).Methods("POST")
	m.HandleFunc("/video-status", h.ListVideoStatus).Methods("GET")
	m.HandleFunc("/video-status/{id}", h.VideoStatus).Methods("GET")

	s := r.PathPrefix("/static").Subrouter()
	s.HandleFunc("/video-hls/{id}/master.m3u8", h.ServeManifest).Methods("GET")
	s.HandleFunc("/video-hls/{id}/{variant}/{segment}", h.ServeSegment).Methods("GET")
	s.HandleFunc("/image/{name}", h.ServeImage).Methods("GET")

	r.HandleFunc("/admin/cleanup", h.AdminCleanup).Methods("POST")
	return r
}
