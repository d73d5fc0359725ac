package clients

import (
	"context"
	"fmt"
	"net/http"
)

// Comment is the downstream comment service's comment representation
type Comment struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

// CommentClient wraps the client for the comment service
type CommentClient struct {
	baseClient
}

// GetCommentsByUser fetches a user's comments
func (c *CommentClient) GetCommentsByUser(ctx context.Context, userID string) ([]Comment, error) {
	return c.getComments(ctx, "/comments?user_id="+userID)
}

// GetCommentsByPost fetches a post's comments
func (c *CommentClient) GetCommentsByPost(ctx context.Context, postID string) ([]Comment, error) {
	return c.getComments(ctx, "/comments?post_id="+postID)
}

func (c *CommentClient) getComments(ctx context.Context, path string) ([]Comment, error) {
	var resp struct {
		serviceResponse
		Comments []Comment `json:"comments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("failed to get comments: %s", resp.Message)
	}
	return resp.Comments, nil
}

// DeleteComments deletes comments by owning user and/or post. Idempotent:
// an empty match reports success.
func (c *CommentClient) DeleteComments(ctx context.Context, userIDs, postIDs []string) error {
	body := map[string][]string{}
	if len(userIDs) > 0 {
		body["user_ids"] = userIDs
	}
	if len(postIDs) > 0 {
		body["post_ids"] = postIDs
	}

	var resp serviceResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/comments", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("failed to delete comments: %s", resp.Message)
	}
	return nil
}
