// Package worker runs the outer enrichment loop: it leases the next
// pending image asset, drives captioning, tag discovery, embedding, and
// aliasing against it, and commits a classified outcome back to storage.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ancill/mediapod/asset-worker/internal/alias"
	"github.com/ancill/mediapod/asset-worker/internal/config"
	"github.com/ancill/mediapod/asset-worker/internal/embedding"
	"github.com/ancill/mediapod/asset-worker/internal/store"
	"github.com/ancill/mediapod/asset-worker/internal/tagging"
	"github.com/ancill/mediapod/asset-worker/internal/vlmclient"
)

// Loop owns the provider, embedder, and config knobs shared by every
// iteration; a Store is opened fresh per iteration so a wedged DB
// connection never blocks the worker indefinitely.
type Loop struct {
	cfg      *config.Config
	provider vlmclient.Provider
	embedder *embedding.Client
}

func New(cfg *config.Config, provider vlmclient.Provider, embedder *embedding.Client) *Loop {
	return &Loop{cfg: cfg, provider: provider, embedder: embedder}
}

// Run polls until ctx is canceled or opening the database fails,
// sleeping PollSeconds between empty polls and RetryBackoffSeconds after
// a transient failure.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sleepFor, err := l.runOnce(ctx)
		if err != nil {
			return err
		}
		if sleepFor > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleepFor):
			}
		}
	}
}

// runOnce opens a fresh connection, leases and processes at most one
// job, and reports how long the caller should sleep before the next poll.
func (l *Loop) runOnce(ctx context.Context) (time.Duration, error) {
	s, err := store.Open(l.cfg.DB.Path)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	job, err := s.FetchNextJob()
	if err != nil {
		log.Error().Err(err).Msg("fetch next job failed")
		return pollInterval(l.cfg), nil
	}
	if job == nil {
		return pollInterval(l.cfg), nil
	}

	runID := uuid.NewString()
	log.Info().Str("run_id", runID).Str("asset_id", job.AssetID).Str("file", job.OriginalName).Msg("processing asset")

	if err := s.SetStatus(job.AssetID, "processing"); err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("asset_id", job.AssetID).Msg("set status failed")
		return pollInterval(l.cfg), nil
	}

	outcome := l.process(ctx, job)
	return l.commit(ctx, s, job, outcome, runID), nil
}

// outcome is the classified result of processing a single job.
type outcome struct {
	status       string // done | pending | failed
	caption      string
	tags         []tagging.Tag
	transient    bool
	err          error
	modelVersion string
}

func (l *Loop) process(ctx context.Context, job *store.Job) outcome {
	imageRef := job.StoragePath
	modelVersion := l.provider.ModelVersion()

	captionLength := strings.ToLower(l.cfg.Provider.CaptionLen)
	if captionLength == "" {
		captionLength = "normal"
	}

	caption, err := l.provider.Caption(ctx, imageRef, captionLength)
	if err != nil {
		if captionLength == "long" && isTimeoutMessage(err.Error()) {
			caption, err = l.provider.Caption(ctx, imageRef, "normal")
		}
	}
	if err != nil {
		return classify(err, modelVersion)
	}

	tags, tagErr := tagging.Discover(ctx, l.provider, imageRef, caption, tagging.Options{
		MaxTags: l.cfg.Tagging.MaxTags,
		Mode:    l.cfg.Tagging.Mode,
	})
	if tagErr != nil {
		return classify(tagErr, modelVersion)
	}

	return outcome{status: "done", caption: caption, tags: tags, modelVersion: modelVersion}
}

func classify(err error, modelVersion string) outcome {
	var pe *vlmclient.ProviderError
	transient := errors.As(err, &pe) && isTransientMessage(err.Error())
	status := "failed"
	if transient {
		status = "pending"
	}
	return outcome{
		status:       status,
		transient:    transient,
		err:          err,
		modelVersion: modelVersion,
	}
}

func isTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, k := range []string{"queue is full", "rejected", "timeout", "timed out"} {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

func isTimeoutMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

// commit writes the classified outcome back inside a single transaction
// (so readers never observe a partial result) and returns the caller's
// next sleep duration (only non-zero after a transient failure).
func (l *Loop) commit(ctx context.Context, s *store.Store, job *store.Job, o outcome, runID string) time.Duration {
	if o.status != "done" {
		if err := l.commitRequeueOrFail(s, job, o); err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("asset_id", job.AssetID).Msg("commit failed")
			return 0
		}
		if o.transient {
			log.Warn().Err(o.err).Str("run_id", runID).Str("asset_id", job.AssetID).Msg("transient error; re-queued")
			return retryBackoff(l.cfg)
		}
		log.Error().Err(o.err).Str("run_id", runID).Str("asset_id", job.AssetID).Msg("failed")
		return 0
	}

	if err := l.commitDone(ctx, s, job, o); err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("asset_id", job.AssetID).Msg("commit failed")
		return 0
	}
	log.Info().Str("run_id", runID).Str("asset_id", job.AssetID).Msg("done")
	return 0
}

func (l *Loop) commitRequeueOrFail(s *store.Store, job *store.Job, o outcome) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.WriteResults(job.AssetID, "", nil, o.status, o.modelVersion); err != nil {
		return err
	}
	if err := tx.DeleteSegmentsNotIn(job.AssetID, nil); err != nil {
		return err
	}
	if err := tx.UpdateSearchIndex(job.AssetID); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *Loop) commitDone(ctx context.Context, s *store.Store, job *store.Job, o outcome) error {
	tagNames := make([]string, 0, len(o.tags))
	for _, t := range o.tags {
		tagNames = append(tagNames, t.Name)
	}

	// Filesystem alias work happens outside the transaction; it must
	// never be able to downgrade a successful enrichment to failed. The
	// derived display name itself, however, is written in the same
	// commit as the rest of the job's result (§4.F).
	var aliasResult *alias.Result
	if l.cfg.Alias.GenerateNames {
		aliasResult = alias.Rename(ctx, l.provider, alias.Job{
			AssetID:      job.AssetID,
			StoragePath:  job.StoragePath,
			OriginalName: job.OriginalName,
			SHA256:       job.SHA256,
		}, o.caption, alias.Options{
			GenerateNames:   l.cfg.Alias.GenerateNames,
			CreateNamedLink: l.cfg.Alias.CreateNamedLink,
			NameMode:        l.cfg.Alias.NameMode,
		})
	}

	var emb *embedding.Result
	if l.embedder != nil {
		emb, _ = l.embedder.Embed(ctx, o.caption)
	}

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.WriteResults(job.AssetID, o.caption, tagNames, "done", o.modelVersion); err != nil {
		return err
	}

	if aliasResult != nil {
		if err := tx.UpdateOriginalName(job.AssetID, aliasResult.DisplayName); err != nil {
			return err
		}
	}

	if emb != nil {
		if err := tx.UpsertEmbeddingRow(job.AssetID, emb.Model, emb.Dim, emb.Blob); err != nil {
			return err
		}
	}

	for _, t := range o.tags {
		var svgPtr *string
		if t.Segment != "" {
			svg := t.Segment
			svgPtr = &svg
		}
		payload := map[string]any{"tag": t.Name, "boxes": t.Boxes, "raw": t.Raw}
		if t.SegmentBBox != nil {
			payload["segment_bbox"] = t.SegmentBBox
		}
		var bboxPtr *string
		if b, err := json.Marshal(payload); err == nil {
			s := string(b)
			bboxPtr = &s
		}
		if err := tx.UpsertSegmentRow(job.AssetID, t.Name, svgPtr, bboxPtr); err != nil {
			return err
		}
	}
	if err := tx.DeleteSegmentsNotIn(job.AssetID, tagNames); err != nil {
		return err
	}
	if err := tx.UpdateSearchIndex(job.AssetID); err != nil {
		return err
	}
	return tx.Commit()
}

func pollInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Loop.PollSeconds * float64(time.Second))
}

func retryBackoff(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Loop.RetryBackoffSeconds * float64(time.Second))
}
