package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"speech-insights-service/internal/blob"
	"speech-insights-service/internal/events"
	"speech-insights-service/internal/models"
	"speech-insights-service/internal/service/audio"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	audioFile := flag.String("audio", "testdata/call1.wav", "Path to WAV file")
	name := flag.String("name", "", "Blob name (defaults to the file name)")
	provider := flag.String("provider", envOr("BLOB_PROVIDER", blob.ProviderLocal), "Blob provider: local or s3")
	container := flag.String("container", envOr("BLOB_CONTAINER", "incoming"), "Blob container")
	localDir := flag.String("local-dir", envOr("BLOB_LOCAL_DIR", "blobs"), "Base directory for the local provider")
	bucket := flag.String("bucket", os.Getenv("S3_BUCKET"), "S3 bucket")
	brokers := flag.String("brokers", os.Getenv("KAFKA_BROKERS"), "Comma-separated Kafka brokers; empty skips the notification")
	topic := flag.String("topic", envOr("BLOB_EVENTS_TOPIC", "storage.blob.events"), "Notification topic")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	format, err := audio.ReadWAVHeader(f)
	if err != nil {
		log.Fatalf("Not a usable WAV file: %v", err)
	}
	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d dataBytes=%d",
		format.AudioFormat, format.Channels, format.SampleRate, format.BitsPerSample, format.DataSize)
	if format.AudioFormat != audio.FormatPCM && format.AudioFormat != audio.FormatMuLaw {
		log.Fatal("Only PCM and mu-law WAV files are supported")
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Fatalf("Failed to rewind audio file: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("Failed to stat audio file: %v", err)
	}

	blobName := *name
	if blobName == "" {
		blobName = filepath.Base(*audioFile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := blob.New(ctx, blob.Config{
		Provider:  *provider,
		Container: *container,
		LocalDir:  *localDir,
		Bucket:    *bucket,
		Region:    os.Getenv("S3_REGION"),
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	})
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}

	start := time.Now()
	if err := store.Put(ctx, blobName, f); err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	log.Printf("Uploaded %s to %s/%s (%d bytes in %v)", *audioFile, *container, blobName, info.Size(), time.Since(start))

	var brokerList []string
	for _, b := range strings.Split(*brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	if len(brokerList) == 0 {
		log.Println("No Kafka brokers configured, skipping notification")
		return
	}

	publisher := events.New(&events.Config{
		Enabled:         true,
		Brokers:         brokerList,
		BlobEventsTopic: *topic,
		Principal:       "uploadclient",
	})
	defer publisher.Close()

	ev := models.BlobCreated{
		Container: *container,
		Name:      blobName,
		Size:      info.Size(),
		URL:       store.URL(blobName),
		EventTime: time.Now().UTC(),
	}
	if err := publisher.PublishBlobCreated(ctx, ev); err != nil {
		log.Fatalf("Failed to publish notification: %v", err)
	}
	log.Printf("Published %s notification for %s", models.EventBlobCreated, blobName)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
