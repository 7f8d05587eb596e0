package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBlueskyHost = "https://bsky.social"
	postCollection     = "app.bsky.feed.post"
	imageEmbedType     = "app.bsky.embed.images"

	// blueskyPostDelay spaces sequential thread posts apart.
	blueskyPostDelay = 2 * time.Second
)

// ErrPublishPartial reports a thread where some chunks posted and a later
// one failed. The posted chunks stay up.
var ErrPublishPartial = errors.New("thread partially published")

// PostRef identifies one published post.
type PostRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ImageAttachment is an image embedded in the first post of a thread.
type ImageAttachment struct {
	Data []byte
	Mime string
	Alt  string
}

// PostRecord is an app.bsky.feed.post record.
type PostRecord struct {
	Type      string      `json:"$type"`
	Text      string      `json:"text"`
	CreatedAt string      `json:"createdAt"`
	Reply     *ReplyRef   `json:"reply,omitempty"`
	Embed     *ImageEmbed `json:"embed,omitempty"`
}

// ReplyRef carries the dual root and parent references reply threading
// requires.
type ReplyRef struct {
	Root   PostRef `json:"root"`
	Parent PostRef `json:"parent"`
}

// ImageEmbed attaches uploaded images to a post.
type ImageEmbed struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images"`
}

// EmbedImage pairs an uploaded blob with its alt text.
type EmbedImage struct {
	Alt   string          `json:"alt"`
	Image json.RawMessage `json:"image"`
}

// BlueskyAPI is the slice of the XRPC surface publishing needs.
type BlueskyAPI interface {
	CreateSession(ctx context.Context, identifier, password string) error
	UploadBlob(ctx context.Context, data []byte, mime string) (json.RawMessage, error)
	CreatePost(ctx context.Context, record PostRecord) (PostRef, error)
}

// APIFactory creates a Bluesky API client for a host. Tests swap in fakes.
type APIFactory func(host string) BlueskyAPI

var defaultAPIFactory APIFactory = func(host string) BlueskyAPI {
	return newBlueskyClient(host)
}

// BlueskyChannel publishes poem threads to one Bluesky account.
type BlueskyChannel struct {
	identifier string
	password   string
	footer     string
	budget     int
	postDelay  time.Duration
	api        BlueskyAPI
}

// NewBlueskyChannel creates a channel using the real XRPC client. An empty
// host selects the public bsky.social endpoint.
func NewBlueskyChannel(host, identifier, password, footer string, budget int) *BlueskyChannel {
	return NewBlueskyChannelWithFactory(host, identifier, password, footer, budget, defaultAPIFactory)
}

// NewBlueskyChannelWithFactory creates a channel with a custom API factory.
func NewBlueskyChannelWithFactory(host, identifier, password, footer string, budget int, factory APIFactory) *BlueskyChannel {
	return &BlueskyChannel{
		identifier: identifier,
		password:   password,
		footer:     footer,
		budget:     budget,
		postDelay:  blueskyPostDelay,
		api:        factory(host),
	}
}

// Name identifies the channel in logs.
func (c *BlueskyChannel) Name() string { return "bluesky" }

// PostWebURL converts an at:// post URI into its public bsky.app URL.
// Returns "" for anything that is not a feed post URI.
func PostWebURL(uri string) string {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != postCollection {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", parts[0], parts[2])
}

// Configured reports whether posting credentials are present.
func (c *BlueskyChannel) Configured() bool {
	return c.identifier != "" && c.password != ""
}

// PublishThread posts the poem as a reply chain and returns the root
// post's reference. Missing credentials make publishing a logged no-op
// returning an empty reference. Chunks are posted strictly in order, each
// reply carrying both the root and the immediately preceding post. When a
// later chunk fails, already-posted chunks stay up and the root reference
// is returned together with ErrPublishPartial.
func (c *BlueskyChannel) PublishThread(ctx context.Context, poem string, image *ImageAttachment) (PostRef, error) {
	if !c.Configured() {
		log.Printf("[bluesky] credentials not configured, skipping publish")
		return PostRef{}, nil
	}
	chunks := ComposeThread(poem, c.budget)
	if len(chunks) == 0 {
		return PostRef{}, nil
	}

	if err := c.api.CreateSession(ctx, c.identifier, c.password); err != nil {
		return PostRef{}, fmt.Errorf("bluesky login: %w", err)
	}

	var embed *ImageEmbed
	if image != nil {
		blob, err := c.api.UploadBlob(ctx, image.Data, image.Mime)
		if err != nil {
			return PostRef{}, fmt.Errorf("upload image: %w", err)
		}
		embed = &ImageEmbed{
			Type:   imageEmbedType,
			Images: []EmbedImage{{Alt: image.Alt, Image: blob}},
		}
	}

	var root, parent PostRef
	for i, chunk := range chunks {
		record := PostRecord{
			Type:      postCollection,
			Text:      DecorateChunk(chunk, i, len(chunks), c.footer, c.budget),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if i == 0 {
			record.Embed = embed
		} else {
			record.Reply = &ReplyRef{Root: root, Parent: parent}
		}

		ref, err := c.api.CreatePost(ctx, record)
		if err != nil {
			if i == 0 {
				return PostRef{}, fmt.Errorf("publish first chunk: %w", err)
			}
			log.Printf("[bluesky] chunk %d of %d failed: %v", i+1, len(chunks), err)
			return root, fmt.Errorf("published %d of %d chunks: %w", i, len(chunks), ErrPublishPartial)
		}
		if i == 0 {
			root = ref
		}
		parent = ref

		if c.postDelay > 0 && i < len(chunks)-1 {
			time.Sleep(c.postDelay)
		}
	}
	log.Printf("[bluesky] published thread of %d posts: %s", len(chunks), root.URI)
	return root, nil
}

// blueskyClient is the real XRPC client.
type blueskyClient struct {
	host       string
	httpClient *http.Client
	accessJwt  string
	did        string
}

func newBlueskyClient(host string) *blueskyClient {
	if host == "" {
		host = defaultBlueskyHost
	}
	return &blueskyClient{
		host:       host,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *blueskyClient) xrpc(ctx context.Context, proc, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/xrpc/"+proc, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s status %d: %s", proc, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *blueskyClient) CreateSession(ctx context.Context, identifier, password string) error {
	body, err := json.Marshal(map[string]string{"identifier": identifier, "password": password})
	if err != nil {
		return fmt.Errorf("marshal session request: %w", err)
	}
	var res struct {
		AccessJwt string `json:"accessJwt"`
		Did       string `json:"did"`
	}
	if err := c.xrpc(ctx, "com.atproto.server.createSession", "application/json", bytes.NewReader(body), &res); err != nil {
		return err
	}
	c.accessJwt = res.AccessJwt
	c.did = res.Did
	return nil
}

func (c *blueskyClient) UploadBlob(ctx context.Context, data []byte, mime string) (json.RawMessage, error) {
	var res struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := c.xrpc(ctx, "com.atproto.repo.uploadBlob", mime, bytes.NewReader(data), &res); err != nil {
		return nil, err
	}
	return res.Blob, nil
}

func (c *blueskyClient) CreatePost(ctx context.Context, record PostRecord) (PostRef, error) {
	body, err := json.Marshal(struct {
		Repo       string     `json:"repo"`
		Collection string     `json:"collection"`
		Record     PostRecord `json:"record"`
	}{Repo: c.did, Collection: postCollection, Record: record})
	if err != nil {
		return PostRef{}, fmt.Errorf("marshal post: %w", err)
	}
	var ref PostRef
	if err := c.xrpc(ctx, "com.atproto.repo.createRecord", "application/json", bytes.NewReader(body), &ref); err != nil {
		return PostRef{}, err
	}
	return ref, nil
}
