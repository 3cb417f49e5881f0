package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"github.com/ternarybob/clavis/internal/storage"
)

// HeadSource resolves the current head commit of a branch.
type HeadSource interface {
	BranchHead(ctx context.Context, owner, repo, branch string) (string, error)
}

// githubHeads resolves branch heads through the GitHub API.
type githubHeads struct {
	client *github.Client
}

func (g *githubHeads) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	sha, _, err := g.client.Repositories.GetCommitSHA1(ctx, owner, repo, branch, "")
	if err != nil {
		return "", fmt.Errorf("failed to read head of %s/%s@%s: %w", owner, repo, branch, err)
	}
	return sha, nil
}

// NewHeadSource builds a GitHub-backed head source. With a token the
// client authenticates through oauth2, without one it runs anonymously
// against the public API and lives with the lower rate limit.
func NewHeadSource(token string) HeadSource {
	if token == "" {
		return &githubHeads{client: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	return &githubHeads{client: github.NewClient(tc)}
}

// Service polls the upstream firmware repository and raises the update
// flag when the branch head moves past the published revision. The flag
// is sticky: the watcher only sets it, a catalog run clears it.
type Service struct {
	config    common.WatcherConfig
	publisher interfaces.Publisher
	heads     HeadSource
	limiter   *rate.Limiter
	logger    arbor.ILogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewService creates a watcher. A nil heads falls back to the GitHub API
// using the configured token.
func NewService(config common.WatcherConfig, publisher interfaces.Publisher, heads HeadSource, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	if heads == nil {
		heads = NewHeadSource(config.Token)
	}

	perHour := config.RequestsPerHour
	if perHour <= 0 {
		perHour = 60
	}

	return &Service{
		config:    config,
		publisher: publisher,
		heads:     heads,
		limiter:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), 1),
		logger:    logger,
	}
}

// Start launches the poll loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("watcher already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	interval := common.ParseDurationOr(s.config.Interval, 5*time.Minute)
	done := s.done
	common.SafeGo(s.logger, "revision-watcher", func() {
		defer close(done)
		s.poll(runCtx, interval)
	})

	s.logger.Info().
		Str("repo", s.config.Owner+"/"+s.config.Repo).
		Str("branch", s.config.Branch).
		Str("interval", interval.String()).
		Msg("Revision watcher started")

	return nil
}

// Stop halts the poll loop and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info().Msg("Revision watcher stopped")
}

func (s *Service) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CheckOnce(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Revision check failed")
			}
		}
	}
}

// CheckOnce compares the branch head against the published revision and
// raises the update flag on a mismatch. A tree that publishes an unknown
// revision never matches, which keeps scheduled rebuilds flowing rather
// than silently going stale.
func (s *Service) CheckOnce(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	head, err := s.heads.BranchHead(ctx, s.config.Owner, s.config.Repo, s.config.Branch)
	if err != nil {
		return err
	}

	published := ""
	var stamp models.UpdateStamp
	switch err := s.publisher.GetJSON(ctx, storage.KeyUpdateStamp, &stamp); {
	case err == nil:
		published = stamp.GitHash
	case errors.Is(err, interfaces.ErrKeyNotFound):
		// nothing published yet, any head counts as new
	default:
		return fmt.Errorf("failed to read the published revision: %w", err)
	}

	if head == published {
		s.logger.Debug().Str("head", head).Msg("Catalog is current")
		return nil
	}

	if err := s.publisher.SetJSON(ctx, storage.KeyUpdateNeeded, true); err != nil {
		return fmt.Errorf("failed to raise the update flag: %w", err)
	}

	s.logger.Info().
		Str("head", head).
		Str("published", published).
		Msg("Upstream moved past the published catalog")

	return nil
}
