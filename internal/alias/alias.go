// Package alias derives a human-readable display name for an enriched
// asset and, best-effort, maintains a symlink to it under a project's
// "named/" directory without touching the content-addressed storage file.
package alias

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ancill/mediapod/asset-worker/internal/vlmclient"
)

// Options mirrors the GENERATE_NAMES / CREATE_NAMED_ALIAS / NAME_MODE knobs.
type Options struct {
	GenerateNames   bool
	CreateNamedLink bool
	NameMode        string // caption | query
}

// Job is the minimal asset context alias needs: its storage path, the
// name the caller originally uploaded it under, and its content hash.
type Job struct {
	AssetID      string
	StoragePath  string
	OriginalName string
	SHA256       string
}

// Result is the display name to persist against the asset, set whenever
// a usable title could be derived (even if the on-disk alias step is
// skipped or fails).
type Result struct {
	DisplayName string
}

// Rename derives a pretty display name for job from caption (or, in
// query mode, a fresh VLM prompt) and best-effort creates a symlink
// alias for it. Filesystem failures are swallowed; they must never
// fail the enclosing job.
func Rename(ctx context.Context, provider vlmclient.Provider, job Job, caption string, opts Options) *Result {
	if !opts.GenerateNames {
		return nil
	}

	title := ""
	if strings.ToLower(opts.NameMode) == "query" {
		prompt := "Give a short descriptive title for this image suitable as a filename. " +
			"Respond with ONLY the title words (no punctuation, no quotes), max 6 words."
		if t, err := provider.Query(ctx, job.StoragePath, prompt); err == nil {
			title = strings.TrimSpace(t)
		}
	}
	if title == "" {
		title = strings.TrimSpace(caption)
	}
	if title == "" {
		return nil
	}

	base := slugifyFilenameBase(title)
	if base == "" {
		return nil
	}

	ext := pickExtension(job)
	sha8 := job.SHA256
	if len(sha8) > 8 {
		sha8 = sha8[:8]
	}
	suffix := ""
	if sha8 != "" {
		suffix = "--" + sha8
	}
	pretty := base + suffix + ext

	if opts.CreateNamedLink {
		if err := createNamedLink(job.StoragePath, pretty, sha8, ext); err != nil {
			log.Warn().Err(err).Str("asset_id", job.AssetID).Msg("named alias creation failed, continuing")
		}
	}

	return &Result{DisplayName: pretty}
}

func slugifyFilenameBase(text string) string {
	raw := strings.ToLower(strings.TrimSpace(text))
	var out strings.Builder
	dash := false
	for _, ch := range raw {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			out.WriteRune(ch)
			dash = false
		} else if !dash {
			out.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(out.String(), "-")
	parts := strings.Split(slug, "-")
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	slug = strings.Join(nonEmpty, "-")
	if len(slug) > 64 {
		slug = slug[:64]
	}
	return slug
}

func pickExtension(job Job) string {
	if ext := filepath.Ext(job.StoragePath); ext != "" {
		return ext
	}
	return filepath.Ext(job.OriginalName)
}

// createNamedLink maintains a symlink at <project_root>/named/<pretty>
// pointing at storagePath, pruning any stale alias that shares the same
// content hash and extension suffix.
func createNamedLink(storagePath, pretty, sha8, ext string) error {
	projectRoot := filepath.Dir(filepath.Dir(storagePath))
	namedDir := filepath.Join(projectRoot, "named")
	if err := os.MkdirAll(namedDir, 0o755); err != nil {
		return err
	}

	linkPath := filepath.Join(namedDir, pretty)

	if sha8 != "" && ext != "" {
		suffix := "--" + sha8 + ext
		entries, err := os.ReadDir(namedDir)
		if err == nil {
			for _, e := range entries {
				name := e.Name()
				if strings.HasSuffix(name, suffix) && name != pretty {
					os.Remove(filepath.Join(namedDir, name))
				}
			}
		}
	}

	if _, err := os.Lstat(linkPath); err == nil {
		os.Remove(linkPath)
	}

	return os.Symlink(storagePath, linkPath)
}
