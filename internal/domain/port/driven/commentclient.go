// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

// Sentinel errors returned by CommentClient implementations. Callers match
// them with errors.Is; adapters wrap them with request context.
var (
	// ErrResponse indicates the platform answered with a non-success status.
	ErrResponse = errors.New("unsuccessful response")

	// ErrConnection indicates the request never produced a response.
	ErrConnection = errors.New("connection failed")

	// ErrBadJSON indicates the response body could not be decoded.
	ErrBadJSON = errors.New("malformed response payload")

	// ErrCommentNotFound indicates a single-comment lookup matched nothing.
	ErrCommentNotFound = errors.New("comment not found")
)

// CommentClient defines the driven port for reading comment threads.
// Every method returns one page; pagination is driven by the caller through
// CommentPage.HasMore and CommentPage.NextOffset.
type CommentClient interface {
	// FetchTopLevel returns a page of comments posted directly on a deviation.
	FetchTopLevel(ctx context.Context, dev model.Deviation, offset int) (model.CommentPage, error)

	// FetchReplies returns a page of the direct replies to parent.
	FetchReplies(ctx context.Context, parent model.CommentURL, offset int) (model.CommentPage, error)

	// FetchComment returns the single comment addressed by url.
	// Returns ErrCommentNotFound if the thread does not contain it.
	FetchComment(ctx context.Context, url model.CommentURL) (model.RawComment, error)
}
