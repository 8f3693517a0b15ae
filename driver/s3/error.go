package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nuln/filestore"
)

// classifyError maps S3 failures onto the filestore sentinels so callers can
// use errors.Is regardless of the backend.
func classifyError(err error, op, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("filestore/s3: %s %q: %w", op, key, err)
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %s %q", filestore.ErrNotFound, op, key)
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("filestore/s3: %s %q: bucket does not exist: %w", op, key, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s %q", filestore.ErrNotFound, op, key)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %s %q", filestore.ErrPermission, op, key)
		case "NotImplemented":
			return fmt.Errorf("%w: %s", filestore.ErrNotSupported, op)
		default:
			return fmt.Errorf("filestore/s3: %s %q failed (code: %s): %w", op, key, apiErr.ErrorCode(), err)
		}
	}
	return fmt.Errorf("filestore/s3: %s %q: %w", op, key, err)
}
