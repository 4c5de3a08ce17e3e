package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Browser fetches rendered page text for URL ingestion. With a remote URL
// it attaches to an existing Chrome over the debugging protocol;
// otherwise it starts a local headless instance per fetch.
type Browser struct {
	remoteURL string
	timeout   time.Duration
}

func NewBrowser(remoteURL string) *Browser {
	return &Browser{remoteURL: remoteURL, timeout: 60 * time.Second}
}

func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	var allocCtx context.Context
	var cancel context.CancelFunc

	if b.remoteURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(ctx, b.remoteURL)
	} else {
		allocCtx, cancel = chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	}
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, b.timeout)
	defer cancel()

	return chromedp.Run(timeoutCtx, actions...)
}

// FetchPage navigates to url and returns the document title and the
// rendered body text.
func (b *Browser) FetchPage(ctx context.Context, url string) (string, string, error) {
	var title, text string
	err := b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return title, text, nil
}
