package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	// backgroundAssetKey is the cache key for the home-screen background.
	backgroundAssetKey = "asset:background"

	assetFetchTimeout = 15 * time.Second
	// maxAssetSize caps a preloaded asset at 5MB.
	maxAssetSize = 5 << 20
)

// PreloadBackgroundImage fetches the configured background image once at
// process start and caches the bytes for the life of the process. The app
// shows the background on every screen, so a cold fetch per request would
// be wasted work.
func PreloadBackgroundImage(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, assetFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asset fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return err
	}

	if err := Cache.SetBytes(ctx, backgroundAssetKey, data); err != nil {
		return err
	}

	log.Printf("✅ Preloaded background image (%d bytes)", len(data))
	return nil
}

// BackgroundImage returns the preloaded background bytes, if present.
func BackgroundImage(ctx context.Context) ([]byte, bool) {
	data, ok, _ := Cache.GetBytes(ctx, backgroundAssetKey)
	return data, ok
}
