package logo

import (
	"context"
	"fmt"
	"time"

	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
)

const userAgent = "refdata-seeder/1.0"

// HTTPFetcher downloads logo sources over HTTP(S)
type HTTPFetcher struct {
	timeout  time.Duration
	maxBytes int
}

var _ repository.LogoFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. maxBytes <= 0 disables the size limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{timeout: timeout, maxBytes: maxBytes}
}

// Fetch returns the response body of a successful GET
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, apperrors.NewValidationError("logo source url is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Get(url)
	agent.Timeout(timeout)
	agent.UserAgent(userAgent)
	if err := agent.Parse(); err != nil {
		return nil, apperrors.NewValidationError("invalid logo source url " + url).WithCause(err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, apperrors.NewStorageError("fetch logo " + url).WithCause(errs[0])
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return nil, apperrors.NewStorageError(fmt.Sprintf("fetch logo %s: status %d", url, code)).
			WithDetail("status", code)
	}
	if f.maxBytes > 0 && len(body) > f.maxBytes {
		return nil, apperrors.NewStorageError(fmt.Sprintf("fetch logo %s: body exceeds %d bytes", url, f.maxBytes))
	}
	if len(body) == 0 {
		return nil, apperrors.NewStorageError("fetch logo " + url + ": empty body")
	}
	return body, nil
}
