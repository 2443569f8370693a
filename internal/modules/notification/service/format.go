package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
)

const (
	// MaxPostBody is how much of a forum post body is quoted.
	MaxPostBody = 1900

	colorForum  = 0xFF4500
	colorStream = 0x6441A4
	colorVideo  = 0xFF0000
	colorBlog   = 0x0099E1
)

// Format renders an event into a notification shared by every subscriber.
func Format(ev resourceDomain.Event) domain.Notification {
	p := ev.Payload
	n := domain.Notification{
		Title:        p.Title,
		URL:          p.URL,
		Author:       p.Author,
		AuthorURL:    p.AuthorURL,
		ImageURL:     p.ImageURL,
		ThumbnailURL: p.ThumbnailURL,
		Timestamp:    ev.Time,
	}

	switch ev.Kind {
	case resourceDomain.EventKindLive:
		n.Color = colorStream
		if p.Activity != "" {
			n.Announcement = fmt.Sprintf("%s is now live with %s !", p.ResourceName, p.Activity)
		} else {
			n.Announcement = fmt.Sprintf("%s is now live!", p.ResourceName)
		}
		n.Description = p.Body
		if ev.Source == resourceDomain.SourceTypeStream && p.Activity != "" {
			n.Footer = "Playing " + p.Activity
		}
	case resourceDomain.EventKindVideo:
		n.Color = colorVideo
		n.Announcement = "New Video live!"
		n.Description = TrimBody(p.Body, MaxPostBody)
	default:
		switch ev.Source {
		case resourceDomain.SourceTypeForum:
			n.Color = colorForum
			n.Announcement = fmt.Sprintf("A new post in /r/%s !", p.ResourceName)
			n.Description = TrimBody(p.Body, MaxPostBody)
		case resourceDomain.SourceTypeBlog:
			n.Color = colorBlog
			n.Announcement = fmt.Sprintf("New %s post!", p.ResourceName)
			n.Description = TrimBody(p.Body, MaxPostBody)
		default:
			n.Announcement = fmt.Sprintf("New from %s", p.ResourceName)
			n.Description = TrimBody(p.Body, MaxPostBody)
		}
	}
	return n
}

// TrimBody cuts body to max runes and points readers at the full post.
func TrimBody(body string, max int) string {
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	return string(runes[:max]) + "... `click title to continue`"
}
