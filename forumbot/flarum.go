package forumbot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/lmittmann/tint"
)

// Author identifies the forum user who started a discussion.
type Author struct {
	Name       string
	Username   string
	AvatarURL  string
	ProfileURL string
}

// Post is a normalized forum discussion, flattened from the JSON:API
// document the Flarum backend returns.
type Post struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	CommentCount int

	// Content is the discussion content attribute from list responses
	Content string

	// ContentHTML is the first post's rendered body, only populated by
	// FetchDiscussion
	ContentHTML string

	Author Author
	Tags   []string
	URL    string
}

// PlainText converts the post body to plaintext suitable for an embed
// description. The rendered first-post HTML is preferred when present.
func (p Post) PlainText() string {
	body := p.ContentHTML
	if body == "" {
		body = p.Content
	}
	if body == "" {
		return ""
	}
	text, err := html2text.FromString(
		body,
		html2text.Options{OmitLinks: true},
	)
	if err != nil {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

// ForumClient fetches discussions from a Flarum installation's JSON:API.
type ForumClient struct {
	baseURL    string
	pageLimit  int
	httpClient *http.Client
	logger     *slog.Logger
}

func NewForumClient(cfg *FlarumConfig, logger *slog.Logger) *ForumClient {
	if logger == nil {
		logger = slog.Default()
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultFlarumPageLimit
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultFlarumRequestTimeout
	}
	return &ForumClient{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		pageLimit:  pageLimit,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(loggerNameKey, "flarum"),
	}
}

// DiscussionURL returns the public web URL for a discussion ID.
func (c *ForumClient) DiscussionURL(id string) string {
	return fmt.Sprintf("%s/d/%s", c.baseURL, id)
}

func (c *ForumClient) profileURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/u/%s", c.baseURL, username)
}

// Search fetches the most recent page of discussions carrying the given
// tag, then filters them client-side with a case-insensitive substring
// match over title and content. An empty query returns the whole page.
// Matching is bounded by the fetched page, not the full forum.
func (c *ForumClient) Search(
	ctx context.Context,
	tag string,
	query string,
) ([]Post, error) {
	posts, err := c.recentByTag(ctx, tag, c.pageLimit)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return posts, nil
	}

	queryLower := strings.ToLower(query)
	matched := make([]Post, 0, len(posts))
	for _, post := range posts {
		title := strings.ToLower(post.Title)
		content := strings.ToLower(post.Content)
		if strings.Contains(title, queryLower) ||
			strings.Contains(content, queryLower) {
			matched = append(matched, post)
		}
	}
	return matched, nil
}

// RecentNews fetches the newest discussions carrying the news tag,
// including each discussion's first post.
func (c *ForumClient) RecentNews(
	ctx context.Context,
	tag string,
	limit int,
) ([]Post, error) {
	return c.recentByTag(ctx, tag, limit)
}

func (c *ForumClient) recentByTag(
	ctx context.Context,
	tag string,
	limit int,
) ([]Post, error) {
	params := url.Values{}
	params.Set("filter[tag]", tag)
	params.Set("page[limit]", fmt.Sprintf("%d", limit))
	params.Set("include", "user,tags")
	params.Set("sort", "-createdAt")

	requestURL := fmt.Sprintf(
		"%s/api/discussions?%s",
		c.baseURL,
		params.Encode(),
	)

	var doc flarumListDocument
	if err := c.getJSON(ctx, requestURL, &doc); err != nil {
		return nil, err
	}

	index := indexResources(doc.Included)
	posts := make([]Post, 0, len(doc.Data))
	for i := range doc.Data {
		posts = append(posts, c.buildPost(doc.Data[i], index))
	}
	return posts, nil
}

// FetchDiscussion retrieves a single discussion with its first post,
// author and tags.
func (c *ForumClient) FetchDiscussion(
	ctx context.Context,
	id string,
) (Post, error) {
	requestURL := fmt.Sprintf(
		"%s/api/discussions/%s?include=user%%2CfirstPost%%2Ctags",
		c.baseURL,
		url.PathEscape(id),
	)

	var doc flarumSingleDocument
	if err := c.getJSON(ctx, requestURL, &doc); err != nil {
		return Post{}, err
	}

	index := indexResources(doc.Included)
	post := c.buildPost(doc.Data, index)

	// the rendered body lives on the first post, not the discussion
	for _, resource := range doc.Included {
		if resource.Type == "posts" && resource.Attributes.Number == 1 {
			post.ContentHTML = resource.Attributes.ContentHTML
			break
		}
	}
	return post, nil
}

func (c *ForumClient) getJSON(
	ctx context.Context,
	requestURL string,
	target any,
) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		requestURL,
		nil,
	)
	if err != nil {
		return fmt.Errorf("error creating flarum request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(
			ctx,
			"flarum request failed",
			"url", requestURL,
			tint.Err(err),
		)
		return fmt.Errorf("flarum request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.DebugContext(
		ctx,
		"flarum request completed",
		"url", requestURL,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf(
			"flarum request failed: unexpected status %s",
			resp.Status,
		)
	}

	if err = json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding flarum response: %w", err)
	}
	return nil
}

// buildPost flattens a discussion resource and its sideloaded user and
// tag resources into a Post.
func (c *ForumClient) buildPost(
	resource flarumResource,
	index map[flarumIdentifier]flarumResource,
) Post {
	post := Post{
		ID:           resource.ID,
		Title:        resource.Attributes.Title,
		CreatedAt:    resource.Attributes.CreatedAt,
		CommentCount: resource.Attributes.CommentCount,
		Content:      resource.Attributes.Content,
		URL:          c.DiscussionURL(resource.ID),
	}

	if rel, ok := resource.Relationships["user"]; ok && rel.Data.One != nil {
		if user, found := index[*rel.Data.One]; found {
			name := user.Attributes.DisplayName
			if name == "" {
				name = user.Attributes.Username
			}
			if name == "" {
				name = "Unknown User"
			}
			post.Author = Author{
				Name:       name,
				Username:   user.Attributes.Username,
				AvatarURL:  user.Attributes.AvatarURL,
				ProfileURL: c.profileURL(user.Attributes.Username),
			}
		}
	}

	if rel, ok := resource.Relationships["tags"]; ok {
		for _, identifier := range rel.Data.Many {
			if tag, found := index[identifier]; found &&
				tag.Attributes.Name != "" {
				post.Tags = append(post.Tags, tag.Attributes.Name)
			}
		}
	}

	return post
}

type flarumListDocument struct {
	Data     []flarumResource `json:"data"`
	Included []flarumResource `json:"included"`
}

type flarumSingleDocument struct {
	Data     flarumResource   `json:"data"`
	Included []flarumResource `json:"included"`
}

type flarumResource struct {
	Type          string                        `json:"type"`
	ID            string                        `json:"id"`
	Attributes    flarumAttributes              `json:"attributes"`
	Relationships map[string]flarumRelationship `json:"relationships"`
}

// flarumAttributes is the union of the attribute fields used across
// discussion, post, user and tag resources.
type flarumAttributes struct {
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	ContentHTML  string    `json:"contentHtml"`
	CreatedAt    time.Time `json:"createdAt"`
	CommentCount int       `json:"commentCount"`
	Number       int       `json:"number"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl"`
	Name         string    `json:"name"`
}

type flarumRelationship struct {
	Data flarumRelationshipData `json:"data"`
}

type flarumIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// flarumRelationshipData accepts both forms of JSON:API relationship
// linkage: a single identifier object (to-one) or an identifier array
// (to-many).
type flarumRelationshipData struct {
	One  *flarumIdentifier
	Many []flarumIdentifier
}

func (d *flarumRelationshipData) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, &d.Many)
	}
	var one flarumIdentifier
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	d.One = &one
	return nil
}

func indexResources(
	resources []flarumResource,
) map[flarumIdentifier]flarumResource {
	index := make(map[flarumIdentifier]flarumResource, len(resources))
	for _, resource := range resources {
		key := flarumIdentifier{Type: resource.Type, ID: resource.ID}
		index[key] = resource
	}
	return index
}
