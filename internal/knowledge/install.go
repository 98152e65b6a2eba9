package knowledge

import (
	"context"
	"log"
	"time"

	"cookietrail/services/recorder/internal/classifier"
)

// Install fetches src and publishes the result to c. On failure nothing is
// installed, c is marked failed, and the error is returned.
func Install(ctx context.Context, c *classifier.Classifier, src Source) (int, error) {
	entries, err := src.Fetch(ctx)
	if err != nil {
		c.Fail(err)
		return 0, err
	}

	c.Install(classifier.NewKnowledgeBase(entries))
	return len(entries), nil
}

// Load resolves locator and installs it within timeout. Failures are logged
// once and leave c classifying everything as Unknown.
func Load(ctx context.Context, c *classifier.Classifier, locator string, opts Options, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	src, err := Resolve(ctx, locator, opts)
	if err != nil {
		c.Fail(err)
		log.Printf("knowledge base load failed locator=%s err=%v", locator, err)
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			log.Printf("knowledge base source close failed locator=%s err=%v", locator, closeErr)
		}
	}()

	count, err := Install(ctx, c, src)
	if err != nil {
		log.Printf("knowledge base load failed locator=%s err=%v", locator, err)
		return err
	}

	log.Printf("knowledge base loaded locator=%s entries=%d duration_ms=%d", locator, count, time.Since(started).Milliseconds())
	return nil
}
