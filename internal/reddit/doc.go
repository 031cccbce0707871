// Package reddit reads the authenticated user's upvoted posts.
//
// The client authenticates with the OAuth password grant of a Reddit "script"
// app, pages through /user/<name>/upvoted and normalizes each listing entry
// into a Post with its downloadable media: hosted videos, galleries in
// display order, direct image links and imgur links. Removed and deleted
// posts are flagged rather than filtered so the caller can record them.
package reddit
