// Package telegram delivers archived posts into a Telegram channel.
//
// Channel groups files by kind (video, gif, image, document), sends each
// group as media groups of at most the configured size, and puts the post
// caption on the last file of the last group. Long text is split into
// ordered parts with a pause between sends, and the first part's message id
// represents the whole text. Bot is the subset of the tgbotapi client the
// package needs, so tests can substitute a fake.
package telegram
