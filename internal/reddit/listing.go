package reddit

import (
	"net/url"
	"path"
	"strings"

	"likevault/internal/store"
)

// Post is one upvoted submission.
type Post struct {
	ID        string
	Author    string
	Title     string
	Body      string
	URL       string
	Permalink string
	Subreddit string
	// Removed is set when the post was deleted by its author or removed by moderators.
	Removed bool
	Media   []Media
}

// Media is one downloadable file of a post. Size is zero when unknown.
type Media struct {
	URL     string
	Kind    store.MediaKind
	Caption string
	Size    int64
}

type listing struct {
	Data struct {
		After    string  `json:"after"`
		Children []child `json:"children"`
	} `json:"data"`
}

type child struct {
	Kind string   `json:"kind"`
	Data postData `json:"data"`
}

type postData struct {
	ID                string                   `json:"id"`
	Author            string                   `json:"author"`
	Title             string                   `json:"title"`
	Selftext          string                   `json:"selftext"`
	URL               string                   `json:"url"`
	Permalink         string                   `json:"permalink"`
	Subreddit         string                   `json:"subreddit"`
	RemovedByCategory *string                  `json:"removed_by_category"`
	IsVideo           bool                     `json:"is_video"`
	IsGallery         bool                     `json:"is_gallery"`
	Media             *mediaEmbed              `json:"media"`
	SecureMedia       *mediaEmbed              `json:"secure_media"`
	Preview           *preview                 `json:"preview"`
	GalleryData       *galleryData             `json:"gallery_data"`
	MediaMetadata     map[string]mediaMetadata `json:"media_metadata"`
	CrosspostParents  []postData               `json:"crosspost_parent_list"`
}

type mediaEmbed struct {
	RedditVideo *redditVideo `json:"reddit_video"`
}

type redditVideo struct {
	FallbackURL string `json:"fallback_url"`
	IsGIF       bool   `json:"is_gif"`
}

type preview struct {
	RedditVideoPreview *redditVideo `json:"reddit_video_preview"`
}

type galleryData struct {
	Items []galleryItem `json:"items"`
}

type galleryItem struct {
	MediaID string `json:"media_id"`
	Caption string `json:"caption"`
}

type mediaMetadata struct {
	Status string `json:"status"`
	E      string `json:"e"`
	S      struct {
		U   string `json:"u"`
		GIF string `json:"gif"`
		MP4 string `json:"mp4"`
	} `json:"s"`
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

func (p postData) toPost() Post {
	post := Post{
		ID:        p.ID,
		Author:    p.Author,
		Title:     p.Title,
		Body:      p.Selftext,
		URL:       p.URL,
		Permalink: p.Permalink,
		Subreddit: p.Subreddit,
		Removed:   p.removed(),
	}
	if post.Author == "" {
		post.Author = "[deleted]"
	}
	post.Media = p.media()
	if len(post.Media) == 0 && len(p.CrosspostParents) > 0 {
		post.Media = p.CrosspostParents[0].media()
	}
	return post
}

func (p postData) removed() bool {
	if p.RemovedByCategory != nil && *p.RemovedByCategory != "" {
		return true
	}
	switch strings.TrimSpace(p.Author) {
	case "", "[deleted]":
		return true
	}
	switch strings.TrimSpace(p.Selftext) {
	case "[removed]", "[deleted]":
		return true
	}
	return false
}

// media extracts files in display order. A hosted video wins over its
// preview image; a gallery keeps the order of gallery_data.
func (p postData) media() []Media {
	if video := p.hostedVideo(); video != nil {
		kind := store.KindVideo
		if video.IsGIF {
			kind = store.KindGIF
		}
		return []Media{{URL: video.FallbackURL, Kind: kind}}
	}
	if p.GalleryData != nil && len(p.GalleryData.Items) > 0 {
		return p.gallery()
	}
	if p.Preview != nil && p.Preview.RedditVideoPreview != nil && p.Preview.RedditVideoPreview.FallbackURL != "" {
		return []Media{{URL: p.Preview.RedditVideoPreview.FallbackURL, Kind: store.KindGIF}}
	}
	if m, ok := directMedia(p.URL); ok {
		return []Media{m}
	}
	return nil
}

func (p postData) hostedVideo() *redditVideo {
	for _, embed := range []*mediaEmbed{p.SecureMedia, p.Media} {
		if embed != nil && embed.RedditVideo != nil && embed.RedditVideo.FallbackURL != "" {
			return embed.RedditVideo
		}
	}
	return nil
}

func (p postData) gallery() []Media {
	out := make([]Media, 0, len(p.GalleryData.Items))
	for _, item := range p.GalleryData.Items {
		meta, ok := p.MediaMetadata[item.MediaID]
		if !ok || (meta.Status != "" && meta.Status != "valid") {
			continue
		}
		switch meta.E {
		case "Image":
			if meta.S.U != "" {
				out = append(out, Media{URL: meta.S.U, Kind: store.KindImage, Caption: item.Caption})
			}
		case "AnimatedImage":
			switch {
			case meta.S.MP4 != "":
				out = append(out, Media{URL: meta.S.MP4, Kind: store.KindGIF, Caption: item.Caption})
			case meta.S.GIF != "":
				out = append(out, Media{URL: meta.S.GIF, Kind: store.KindGIF, Caption: item.Caption})
			}
		}
	}
	return out
}

// directMedia recognizes links that point straight at a file.
func directMedia(raw string) (Media, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return Media{}, false
	}
	host := strings.ToLower(u.Hostname())
	ext := strings.ToLower(path.Ext(u.Path))

	if strings.HasSuffix(host, "imgur.com") {
		id := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
		if id == "" || id == "." || id == "/" || strings.Contains(u.Path, "/a/") || strings.Contains(u.Path, "/gallery/") {
			return Media{}, false
		}
		if ext == ".gifv" || ext == ".mp4" {
			return Media{URL: "https://i.imgur.com/" + id + ".mp4", Kind: store.KindGIF}, true
		}
		if ext == "" {
			ext = ".jpg"
		}
		kind := store.KindImage
		if ext == ".gif" {
			kind = store.KindGIF
		}
		return Media{URL: "https://i.imgur.com/" + id + ext, Kind: kind}, true
	}

	for _, candidate := range imageExtensions {
		if ext == candidate {
			return Media{URL: u.String(), Kind: store.KindImage}, true
		}
	}
	return Media{}, false
}
