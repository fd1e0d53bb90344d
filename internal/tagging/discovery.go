// Package tagging discovers detect-confirmed tags for an asset: it
// proposes candidate object names from a query prompt and/or caption
// tokenization, normalizes and dedupes them, then keeps only the ones
// /detect actually finds in the image, finally attaching a best-effort
// /segment outline to each kept tag.
package tagging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ancill/mediapod/asset-worker/internal/normalize"
	"github.com/ancill/mediapod/asset-worker/internal/vlmclient"
)

var tokenizeStopwords = map[string]bool{
	"the": true, "and": true, "with": true, "without": true, "from": true,
	"into": true, "over": true, "under": true, "near": true, "behind": true,
	"front": true, "left": true, "right": true, "top": true, "bottom": true,
	"this": true, "that": true, "these": true, "those": true, "there": true,
	"here": true, "image": true, "photo": true, "picture": true, "view": true,
	"scene": true, "very": true, "more": true, "most": true, "some": true,
	"many": true, "few": true, "one": true, "two": true, "three": true,
}

var modifierWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true, "with": true,
	"without": true, "in": true, "on": true, "at": true,
	"white": true, "black": true, "red": true, "green": true, "blue": true,
	"yellow": true, "orange": true, "purple": true, "pink": true, "brown": true,
	"gray": true, "grey": true, "gold": true, "silver": true,
	"left": true, "right": true, "top": true, "bottom": true, "center": true,
	"central": true, "upper": true, "lower": true, "front": true, "back": true,
	"circular": true, "round": true, "square": true, "rectangular": true,
	"evenly": true, "even": true, "large": true, "small": true, "big": true,
	"tiny": true, "smooth": true, "shiny": true, "side": true,
	"show": true, "shows": true, "showing": true, "depict": true, "depicts": true,
	"depicted": true, "present": true, "presents": true, "presenting": true,
	"placed": true, "arranged": true,
	"image": true, "photo": true, "picture": true, "scene": true,
	"wall": true, "floor": true, "ceiling": true, "background": true,
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
	"first": true, "second": true, "third": true,
}

// Tag is a detect-confirmed candidate along with its bounding boxes, an
// optional segmentation outline, and the bbox the segmenter reported
// (kept apart from the detect boxes so both survive serialization).
type Tag struct {
	Name        string
	Boxes       []normalize.Box
	Raw         any
	Segment     string
	SegmentBBox *normalize.Box
}

// Options mirrors the SEGMENT_TOP_N / TAGS_MODE knobs.
type Options struct {
	MaxTags int
	Mode    string // query | caption | hybrid
}

// Discover runs the full candidate-generate, normalize, detect-verify,
// segment pipeline for a single asset and returns up to MaxTags tags.
func Discover(ctx context.Context, provider vlmclient.Provider, imageRef, caption string, opts Options) ([]Tag, error) {
	maxTags := opts.MaxTags
	if maxTags <= 0 {
		maxTags = 8
	}
	mode := strings.ToLower(opts.Mode)
	if mode == "" {
		mode = "hybrid"
	}

	var candidates []string
	if mode == "query" || mode == "hybrid" {
		prompt := fmt.Sprintf(
			"List up to %d distinct objects visible in this image. "+
				"Respond with ONLY a JSON array. Each item should be a short noun or noun phrase "+
				`(1-2 words), lowercase, with no colors, counts, or adjectives. `+
				`Example: ["person","dog","coffee table"].`,
			maxTags*2,
		)
		if resp, err := provider.Query(ctx, imageRef, prompt); err == nil {
			candidates = append(candidates, normalize.QueryCandidates(resp)...)
			log.Debug().Int("count", len(candidates)).Msg("query candidates")
		} else {
			log.Debug().Err(err).Msg("query candidates unavailable, falling back to caption")
		}
	}

	if mode == "caption" || mode == "hybrid" {
		capCands := tokenizeCandidates(caption)
		if len(candidates) == 0 {
			candidates = append(candidates, capCands...)
		} else {
			seen := toSet(candidates)
			for _, c := range capCands {
				if !seen[c] {
					candidates = append(candidates, c)
					seen[c] = true
				}
			}
		}
	}

	normalized := make([]string, 0, len(candidates))
	for _, c := range candidates {
		normalized = append(normalized, normalizeTagCandidate(c))
	}
	normalized = dedupePreserveOrder(normalized)
	log.Debug().Int("count", len(normalized)).Strs("candidates", normalized).Msg("normalized candidates")

	probeLimit := maxTags * 3
	if probeLimit < 24 {
		probeLimit = 24
	}
	if probeLimit > len(normalized) {
		probeLimit = len(normalized)
	}

	var tags []Tag
	for _, cand := range normalized[:probeLimit] {
		if len(tags) >= maxTags {
			break
		}
		detectResp, err := provider.Detect(ctx, imageRef, cand)
		if err != nil {
			log.Debug().Err(err).Str("candidate", cand).Msg("detect failed, skipping candidate")
			continue
		}
		boxes := normalize.Boxes(detectResp)
		if len(boxes) == 0 {
			log.Debug().Str("candidate", cand).Msg("no boxes, skipping candidate")
			continue
		}
		log.Debug().Str("tag", cand).Int("boxes", len(boxes)).Msg("candidate confirmed")
		tags = append(tags, Tag{Name: cand, Boxes: boxes, Raw: detectResp})
	}

	segmentSupported := true
	for i := range tags {
		if !segmentSupported {
			continue
		}
		segResp, err := provider.Segment(ctx, imageRef, tags[i].Name)
		if err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "not available") || strings.Contains(msg, "not supported") {
				segmentSupported = false
				log.Debug().Str("tag", tags[i].Name).Msg("segmentation unsupported, skipping remaining tags")
			} else {
				log.Debug().Err(err).Str("tag", tags[i].Name).Msg("segment failed, keeping tag without outline")
			}
			continue
		}
		tags[i].Segment = normalize.SegmentSVG(segResp)
		tags[i].SegmentBBox = normalize.SegmentBBox(segResp)
	}

	return tags, nil
}

func tokenizeCandidates(text string) []string {
	raw := strings.ToLower(text)
	raw = strings.NewReplacer("\n", " ", "\t", " ", "/", " ", "\\", " ").Replace(raw)

	var buf strings.Builder
	for _, ch := range raw {
		if (ch >= 'a' && ch <= 'z') || ch == ' ' {
			buf.WriteRune(ch)
		} else {
			buf.WriteByte(' ')
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(buf.String()) {
		if len(tok) < 3 || tokenizeStopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func normalizeTagCandidate(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return ""
	}
	t = strings.ReplaceAll(t, "_", " ")
	t = strings.ReplaceAll(t, "-", " ")

	var buf strings.Builder
	for _, ch := range t {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == ' ' {
			buf.WriteRune(ch)
		} else {
			buf.WriteByte(' ')
		}
	}
	t = strings.Join(strings.Fields(buf.String()), " ")

	for _, art := range []string{"a ", "an ", "the "} {
		if strings.HasPrefix(t, art) {
			t = strings.TrimSpace(t[len(art):])
			break
		}
	}

	words := strings.Fields(t)
	if len(words) == 0 {
		return ""
	}

	var pruned []string
	allModifierOrDigit := true
	for _, w := range words {
		isDigit := isAllDigits(w)
		if !isDigit {
			allModifierOrDigit = allModifierOrDigit && modifierWords[w]
		}
		if !modifierWords[w] && !isDigit {
			pruned = append(pruned, w)
		}
	}
	if len(pruned) == 0 && allModifierOrDigit {
		return ""
	}
	if len(pruned) > 0 {
		words = pruned
	}

	if len(words) > 3 {
		words = words[:3]
	}
	out := strings.Join(words, " ")
	if len(out) < 2 {
		return ""
	}
	return out
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func dedupePreserveOrder(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
