// Package merger overlays stored social interactions onto a content item's
// native comment list at read time. Nothing here is persisted.
package merger

import (
	"hash/crc32"
	"strconv"

	"github.com/sho7650/social-bridge/internal/core"
)

// DefaultAuthorName labels interactions whose author has no display name
const DefaultAuthorName = "Social User"

// PseudoID derives the stable ID of a synthesized entry. Distinct
// interactions with the same author URL and content share an ID.
func PseudoID(authorURL, content string) string {
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(authorURL+content))), 10)
}

// Merge returns the synthesized entries for interactions followed by the
// native comments. platformName labels the synthesized authors.
func Merge(platformName string, native []core.NativeComment, interactions []core.Interaction, vis core.Visibility) []core.MergedComment {
	synthesized := Synthesize(platformName, native, interactions, vis)
	out := make([]core.MergedComment, 0, len(synthesized)+len(native))
	out = append(out, synthesized...)
	for _, n := range native {
		out = append(out, core.MergedComment{NativeComment: n})
	}
	return out
}

// Synthesize converts the visible interactions not already represented by a
// native comment into comment entries, in the order given.
func Synthesize(platformName string, native []core.NativeComment, interactions []core.Interaction, vis core.Visibility) []core.MergedComment {
	var out []core.MergedComment
	for _, in := range interactions {
		if in.LocalCommentID != 0 {
			continue
		}
		if representedNatively(native, in.Data.Content) {
			continue
		}
		if !vis.Allows(in.Type) {
			continue
		}
		out = append(out, synthesize(platformName, in))
	}
	return out
}

// representedNatively is an exact byte comparison; empty content never matches
func representedNatively(native []core.NativeComment, content string) bool {
	if content == "" {
		return false
	}
	for _, n := range native {
		if n.Content != "" && n.Content == content {
			return true
		}
	}
	return false
}

func synthesize(platformName string, in core.Interaction) core.MergedComment {
	name := in.Data.AuthorName
	if name == "" {
		name = DefaultAuthorName
	}

	commentType := "comment"
	if in.Type == core.InteractionShare {
		commentType = "pingback"
	}

	return core.MergedComment{
		NativeComment: core.NativeComment{
			ID:        PseudoID(in.Data.AuthorURL, in.Data.Content),
			Author:    name + " via " + platformName,
			AuthorURL: in.Data.AuthorURL,
			Content:   in.Data.Content,
			Date:      in.OccurredAt,
			Type:      commentType,
		},
		Platform:        in.Platform,
		InteractionType: in.Type,
		Avatar:          in.Data.AuthorAvatar,
		Synthetic:       true,
	}
}
