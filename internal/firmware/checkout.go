package firmware

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
)

// Checkout manages the firmware working tree through the git CLI.
type Checkout struct {
	config *common.TreeConfig
	logger arbor.ILogger
}

// NewCheckout creates a checkout manager for the configured tree
func NewCheckout(logger arbor.ILogger, config *common.TreeConfig) *Checkout {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Checkout{
		config: config,
		logger: logger,
	}
}

// Ensure makes the working tree available: a missing tree is cloned, an
// existing git checkout is refreshed to the branch head. A directory
// without .git is left alone so externally managed trees keep working.
func (c *Checkout) Ensure(ctx context.Context) error {
	timeout := common.ParseDurationOr(c.config.CheckoutTimeout, 10*time.Minute)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gitDir := filepath.Join(c.config.Path, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return c.refresh(ctx)
	}
	if _, err := os.Stat(c.config.Path); err == nil {
		c.logger.Info().Str("path", c.config.Path).Msg("Tree exists without .git, leaving it unmanaged")
		return nil
	}
	return c.clone(ctx)
}

func (c *Checkout) clone(ctx context.Context) error {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return fmt.Errorf("git not found in PATH: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.config.Path), 0755); err != nil {
		return fmt.Errorf("failed to create checkout parent directory: %w", err)
	}

	c.logger.Info().
		Str("url", c.config.GitURL).
		Str("branch", c.config.GitBranch).
		Str("path", c.config.Path).
		Msg("Cloning firmware repository")

	// Shallow single-branch clone for speed
	cmd := exec.CommandContext(ctx, gitPath, "clone",
		"--depth", "1",
		"--branch", c.config.GitBranch,
		"--single-branch",
		c.config.GitURL,
		c.config.Path,
	)
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to clone repository: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return c.writeVersionFile(ctx)
}

func (c *Checkout) refresh(ctx context.Context) error {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return fmt.Errorf("git not found in PATH: %w", err)
	}

	c.logger.Info().
		Str("branch", c.config.GitBranch).
		Str("path", c.config.Path).
		Msg("Refreshing firmware repository")

	steps := [][]string{
		{"fetch", "--depth", "1", "origin", c.config.GitBranch},
		{"reset", "--hard", "FETCH_HEAD"},
	}
	for _, args := range steps {
		cmd := exec.CommandContext(ctx, gitPath, append([]string{"-C", c.config.Path}, args...)...)
		var stderr bytes.Buffer
		cmd.Stdout = nil
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
		}
	}

	return c.writeVersionFile(ctx)
}

// writeVersionFile records the checked out revision beside the tree so
// runs against a later plain export still know their origin.
func (c *Checkout) writeVersionFile(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "-C", c.config.Path, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to resolve checked out revision")
		return nil
	}

	hash := strings.TrimSpace(string(out))
	versionFile := filepath.Join(c.config.Path, "version.txt")
	if err := os.WriteFile(versionFile, []byte(hash+"\n"), 0644); err != nil {
		c.logger.Warn().Err(err).Str("file", versionFile).Msg("Failed to write version file")
		return nil
	}

	c.logger.Info().Str("revision", hash).Msg("Firmware tree ready")
	return nil
}
