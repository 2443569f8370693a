package blogger

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/reshetovitsme/voice-of-light/internal/shared/httpclient"
	"github.com/samber/oops"
)

const DefaultAPIURL = "https://www.googleapis.com/blogger/v3"

var blogIDPattern = regexp.MustCompile(`^\d+$`)

// Options configures the Blogger client.
type Options struct {
	APIURL string
	APIKey string
}

// Client talks to the Blogger API and parses pushed blog posts.
type Client struct {
	http   *httpclient.Client
	apiURL string
	apiKey string
}

// New creates a Blogger client
func New(client *httpclient.Client, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	return &Client{http: client, apiURL: strings.TrimRight(opts.APIURL, "/"), apiKey: opts.APIKey}
}

// Resolve looks a blog up by numeric id or by its address.
func (c *Client) Resolve(ctx context.Context, query string) (domain.Resource, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Resource{}, oops.New("blog id or address is required")
	}

	var (
		endpoint string
		q        = url.Values{"key": {c.apiKey}, "fields": {"id,name"}}
	)
	if blogIDPattern.MatchString(query) {
		endpoint = c.apiURL + "/blogs/" + query
	} else {
		if !strings.Contains(query, "://") {
			query = "https://" + query
		}
		endpoint = c.apiURL + "/blogs/byurl"
		q.Set("url", query)
	}

	var blog struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.http.GetJSON(ctx, endpoint+"?"+q.Encode(), nil, &blog); err != nil {
		return domain.Resource{}, oops.With("blog", query).Wrap(err)
	}
	if blog.ID == "" {
		return domain.Resource{}, oops.With("blog", query).Wrap(errors.ErrNotFound)
	}
	return domain.Resource{ID: blog.ID, Type: domain.SourceTypeBlog, Name: blog.Name}, nil
}

// PostContent fetches the HTML body of a post. Push payloads leave it out
// for long posts.
func (c *Client) PostContent(ctx context.Context, blogID, postID string) (string, error) {
	var post struct {
		Content string `json:"content"`
	}
	q := url.Values{"key": {c.apiKey}, "fields": {"content"}}
	endpoint := c.apiURL + "/blogs/" + url.PathEscape(blogID) + "/posts/" + url.PathEscape(postID) + "?" + q.Encode()
	if err := c.http.GetJSON(ctx, endpoint, nil, &post); err != nil {
		return "", oops.With("blog_id", blogID, "post_id", postID).Wrap(err)
	}
	return post.Content, nil
}

// CleanContent turns post HTML into plain text with one line per <br>,
// and returns the first image in the post.
func CleanContent(html string) (text string, image string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", oops.Wrapf(err, "parse post content")
	}

	image, _ = doc.Find("img[src]").First().Attr("src")

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").AppendHtml("\n\n")
	text = strings.ReplaceAll(doc.Text(), "\u00a0", " ")
	return strings.TrimSpace(text), image, nil
}
