package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const DefaultBranchTimeout = 30 * time.Minute

type MediaProcessor interface {
	Duration(ctx context.Context, inputPath string) (float64, error)
	ImageThumbnail(ctx context.Context, inputPath, outputPath string) error
	Preview(ctx context.Context, inputPath, outputPath string) error
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
}

type ObjectStorage interface {
	UploadFile(ctx context.Context, key, path, contentType string) (string, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, path string) (ThetaVideo, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (Transcript, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type VideoUpdater interface {
	Update(ctx context.Context, id, creatorID string, p Patch) (Video, error)
}

// PipelineConfig lists the collaborators of a Pipeline. Nil collaborators
// disable the branches that need them.
type PipelineConfig struct {
	Videos        VideoUpdater
	Media         MediaProcessor
	Storage       ObjectStorage
	Transcoder    Transcoder
	Transcriber   Transcriber
	Summarizer    Summarizer
	TempDir       string
	BranchTimeout time.Duration
}

// Pipeline post-processes uploaded source files in the background.
type Pipeline struct {
	cfg    PipelineConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline panics when cfg.Videos is nil.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Videos == nil {
		panic("video: pipeline requires a VideoUpdater")
	}
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = DefaultBranchTimeout
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{cfg: cfg, ctx: ctx, cancel: cancel}
}

type job struct {
	videoID   string
	creatorID string
	source    string
}

type branch struct {
	name string
	run  func(ctx context.Context, j job) error
}

// Launch starts every configured branch for the source file and returns
// immediately. The source file is removed once all branches are done.
func (p *Pipeline) Launch(videoID, creatorID, sourcePath string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Warn("pipeline: closed, discarding upload", "video_id", videoID)
		removeFile(sourcePath)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.run(job{videoID: videoID, creatorID: creatorID, source: sourcePath})
	}()
}

func (p *Pipeline) branches() []branch {
	var out []branch
	skip := func(name, reason string) {
		slog.Info("pipeline: branch disabled", "branch", name, "reason", reason)
	}

	if p.cfg.Media == nil {
		skip("metadata", "no media processor")
		skip("image_thumbnail", "no media processor")
		skip("transcript", "no media processor")
		skip("video_thumbnail", "no media processor")
	} else {
		out = append(out, branch{"metadata", p.metadata})
		if p.cfg.Storage == nil {
			skip("image_thumbnail", "no object storage")
			skip("video_thumbnail", "no object storage")
		} else {
			out = append(out, branch{"image_thumbnail", p.imageThumbnail}, branch{"video_thumbnail", p.videoThumbnail})
		}
		if p.cfg.Transcriber == nil {
			skip("transcript", "no transcriber")
		} else {
			out = append(out, branch{"transcript", p.transcript})
		}
	}
	if p.cfg.Transcoder == nil {
		skip("transcode", "no transcoder")
	} else {
		out = append(out, branch{"transcode", p.transcode})
	}
	return out
}

func (p *Pipeline) run(j job) {
	defer removeFile(j.source)

	var g errgroup.Group
	for _, b := range p.branches() {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(p.ctx, p.cfg.BranchTimeout)
			defer cancel()

			start := time.Now()
			slog.Info("pipeline: branch started", "branch", b.name, "video_id", j.videoID)
			err := b.run(ctx, j)
			switch {
			case errors.Is(err, errNoAudio):
				slog.Info("pipeline: branch skipped", "branch", b.name, "video_id", j.videoID, "reason", err)
				return nil
			case err != nil:
				slog.Error("pipeline: branch failed", "branch", b.name, "video_id", j.videoID, "error", err)
				return fmt.Errorf("%s: %w", b.name, err)
			}
			slog.Info("pipeline: branch finished", "branch", b.name, "video_id", j.videoID, "elapsed", time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("pipeline: finished with errors", "video_id", j.videoID, "error", err)
		return
	}
	slog.Info("pipeline: finished", "video_id", j.videoID)
}

func (p *Pipeline) tempPath(ext string) string {
	return filepath.Join(p.cfg.TempDir, uuid.NewString()+ext)
}

func (p *Pipeline) patch(ctx context.Context, j job, patch Patch) error {
	if _, err := p.cfg.Videos.Update(ctx, j.videoID, j.creatorID, patch); err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

func (p *Pipeline) metadata(ctx context.Context, j job) error {
	d, err := p.cfg.Media.Duration(ctx, j.source)
	if err != nil {
		return err
	}
	return p.patch(ctx, j, Patch{Duration: &d})
}

// renderAndStore renders an artifact with render, uploads it under
// prefix and returns its public URL.
func (p *Pipeline) renderAndStore(ctx context.Context, j job, prefix, ext, contentType string,
	render func(ctx context.Context, in, out string) error) (string, error) {
	out := p.tempPath(ext)
	defer removeFile(out)

	if err := render(ctx, j.source, out); err != nil {
		return "", err
	}
	url, err := p.cfg.Storage.UploadFile(ctx, prefix+filepath.Base(out), out, contentType)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", prefix, err)
	}
	return url, nil
}

func (p *Pipeline) imageThumbnail(ctx context.Context, j job) error {
	url, err := p.renderAndStore(ctx, j, "thumbnails/", ".jpg", "image/jpeg", p.cfg.Media.ImageThumbnail)
	if err != nil {
		return err
	}
	return p.patch(ctx, j, Patch{ImageThumbnailURL: &url})
}

func (p *Pipeline) videoThumbnail(ctx context.Context, j job) error {
	url, err := p.renderAndStore(ctx, j, "previews/", ".mp4", "video/mp4", p.cfg.Media.Preview)
	if err != nil {
		return err
	}
	return p.patch(ctx, j, Patch{VideoThumbnailURL: &url})
}

func (p *Pipeline) transcript(ctx context.Context, j job) error {
	audio := p.tempPath(".mp3")
	defer removeFile(audio)

	if err := p.cfg.Media.ExtractAudio(ctx, j.source, audio); err != nil {
		return err
	}
	tr, err := p.cfg.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	patch := Patch{Transcription: &tr.Segments}
	if p.cfg.Summarizer != nil && tr.Text != "" {
		summary, err := p.cfg.Summarizer.Summarize(ctx, tr.Text)
		if err != nil {
			slog.Error("pipeline: summary failed", "video_id", j.videoID, "error", err)
		} else {
			patch.Summary = &summary
		}
	}
	return p.patch(ctx, j, patch)
}

func (p *Pipeline) transcode(ctx context.Context, j job) error {
	v, err := p.cfg.Transcoder.Transcode(ctx, j.source)
	if err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	url := v.PlaybackURI
	if url == "" {
		url = DefaultPlaybackURL(v.ID)
	}
	return p.patch(ctx, j, Patch{StorageID: &v.ID, URL: &url})
}

// Wait blocks until in-flight pipelines finish or ctx ends.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting uploads and cancels running branches.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("pipeline: failed to remove temp file", "path", path, "error", err)
	}
}
