package clients

import (
	"context"
	"fmt"
	"net/http"
)

// Like is the downstream like service's like representation
type Like struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

// LikeClient wraps the client for the like service
type LikeClient struct {
	baseClient
}

// GetUserLikes fetches the likes a user has made
func (c *LikeClient) GetUserLikes(ctx context.Context, userID string) ([]Like, error) {
	return c.getLikes(ctx, "/likes?user_id="+userID)
}

// GetPostLikes fetches the likes on a post
func (c *LikeClient) GetPostLikes(ctx context.Context, postID string) ([]Like, error) {
	return c.getLikes(ctx, "/likes?post_id="+postID)
}

func (c *LikeClient) getLikes(ctx context.Context, path string) ([]Like, error) {
	var resp struct {
		serviceResponse
		Likes []Like `json:"likes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("failed to get likes: %s", resp.Message)
	}
	return resp.Likes, nil
}

// UnlikePosts removes likes by liking user and/or liked post. Idempotent:
// an empty match reports success.
func (c *LikeClient) UnlikePosts(ctx context.Context, userIDs, postIDs []string) error {
	body := map[string][]string{}
	if len(userIDs) > 0 {
		body["user_ids"] = userIDs
	}
	if len(postIDs) > 0 {
		body["post_ids"] = postIDs
	}

	var resp serviceResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/likes", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("failed to unlike posts: %s", resp.Message)
	}
	return nil
}
