package clients

import (
	"context"
	"fmt"
	"net/http"
)

// Post is the downstream post service's post representation
type Post struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// PostClient wraps the client for the post service
type PostClient struct {
	baseClient
}

// GetPostsByUser fetches a user's posts
func (c *PostClient) GetPostsByUser(ctx context.Context, userID string) ([]Post, error) {
	var resp struct {
		serviceResponse
		Posts []Post `json:"posts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/posts?user_id="+userID, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("failed to get posts for user %s: %s", userID, resp.Message)
	}
	return resp.Posts, nil
}

// DeletePosts deletes posts by ID and/or owner. Idempotent: an empty match
// reports success.
func (c *PostClient) DeletePosts(ctx context.Context, postIDs, userIDs []string) error {
	body := map[string][]string{}
	if len(postIDs) > 0 {
		body["ids"] = postIDs
	}
	if len(userIDs) > 0 {
		body["user_ids"] = userIDs
	}

	var resp serviceResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/posts", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("failed to delete posts: %s", resp.Message)
	}
	return nil
}
