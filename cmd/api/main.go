package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"xmedia/internal/cleanup"
	"xmedia/internal/config"
	"xmedia/internal/encode"
	"xmedia/internal/media"
	"xmedia/internal/storage"
	"xmedia/internal/store"
	"xmedia/internal/transcode"
	httptransport "xmedia/internal/transport/http"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		log.Fatalf("store schema: %v", err)
	}

	s3, err := storage.NewS3(
		cfg.S3Endpoint,
		cfg.S3AccessKey,
		cfg.S3SecretKey,
		cfg.S3Region,
		cfg.S3Bucket,
		cfg.S3UsePathStyle,
		cfg.S3PublicEndpoint,
	)
	if err != nil {
		log.Fatalf("s3 init: %v", err)
	}

	if err := media.EnsureUploadDir(cfg.UploadDir); err != nil {
		log.Fatalf("upload dir init: %v", err)
	}

	transcoder := transcode.NewFFmpeg(cfg.FFmpegPath, cfg.HLSSegmentSeconds)
	queue := encode.NewQueue(statusStore{st}, s3, transcoder)
	svc := media.NewService(media.Config{
		UploadDir:    cfg.UploadDir,
		BaseURL:      cfg.BaseURL,
		MaxVideoSize: cfg.MaxVideoSizeBytes,
		MaxImageSize: cfg.MaxImageSizeBytes,
	}, queue, st)

	jan := cleanup.NewJanitor(st, s3)
	jan.Start(ctx, cfg.CleanupInterval, cfg.JobRetentionDays)

	h := httptransport.NewHandler(svc, s3, jan, cfg.UploadDir, cfg.JobRetentionDays)
	router := httptransport.NewRouter(h)

	var handler http.Handler = httptransport.AuthMiddleware(cfg.APIToken, router)
	handler = httptransport.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute, handler)
	if origins := splitOrigins(cfg.CORSAllowOrigins); len(origins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-KEY"},
		}).Handler(handler)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("api listening on %s", cfg.HTTPAddr)
	log.Fatal(srv.ListenAndServe())
}

// statusStore adapts the Postgres store to the encode queue's port.
type statusStore struct {
	*store.Store
}

func (s statusStore) InsertStatus(ctx context.Context, id, name, status string) error {
	return s.Store.InsertStatus(ctx, store.VideoStatus{ID: id, Name: name, Status: status})
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
