package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"

	"downpour/cmd"
	"downpour/config"
	"downpour/services"
)

func main() {
	var (
		server bool
		port   int
		url    string
		audio  bool
		codec  string
	)

	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 8080, "Port for web server mode")
	flag.StringVar(&url, "url", "", "Media URL to download once and exit")
	flag.BoolVar(&audio, "audio", false, "Extract audio only")
	flag.StringVar(&codec, "codec", "mp3", "Audio codec for -audio mode")
	flag.Parse()

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(port)
		return
	}

	if url == "" {
		flag.Usage()
		return
	}

	if err := downloadOnce(url, audio, codec); err != nil {
		log.Fatalf("Download failed: %s", err)
	}
}

// downloadOnce fetches a single URL synchronously with a terminal progress
// bar, skipping the queue entirely.
func downloadOnce(url string, audio bool, codec string) error {
	downloadDir := config.GetDownloadDir()
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	extractor := services.NewYTDLPService(config.GetYTDLPPath())
	ctx := context.Background()

	meta, err := extractor.ExtractMetadata(ctx, url)
	if err != nil {
		return err
	}
	fmt.Printf("Downloading: %s\n", meta.Title)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)

	opts := services.DownloadOptions{
		URL:            url,
		IsAudioOnly:    audio,
		AudioCodec:     codec,
		OutputDir:      downloadDir,
		OutputTemplate: "%(title)s.%(ext)s",
	}
	hook := func(ev services.ProgressEvent) {
		if ev.Status == "processing" {
			bar.Describe("processing")
		}
		_ = bar.Set(int(ev.Progress))
	}

	path, err := extractor.Download(ctx, opts, hook, func() bool { return false })
	if err != nil {
		return err
	}
	_ = bar.Finish()

	fmt.Printf("\nSaved to %s\n", path)
	return nil
}
