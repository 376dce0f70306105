package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-bitbake/modvcs/internal/appconfig"
	"github.com/go-bitbake/modvcs/internal/cachestore"
	"github.com/go-bitbake/modvcs/internal/driver"
	"github.com/go-bitbake/modvcs/internal/gitexec"
	"github.com/go-bitbake/modvcs/internal/gitremote"
	"github.com/go-bitbake/modvcs/internal/gomodfile"
	"github.com/go-bitbake/modvcs/internal/metadata"
	"github.com/go-bitbake/modvcs/internal/overrides"
	"github.com/go-bitbake/modvcs/internal/pseudoversion"
	"github.com/go-bitbake/modvcs/internal/vanity"
	"github.com/go-bitbake/modvcs/internal/verify"
	"github.com/go-bitbake/modvcs/pkg/applog"
	"github.com/go-bitbake/modvcs/pkg/modrecord"
)

type resolveOptions struct {
	manifestPath  string
	checksumPath  string
	discoveryPath string
	outDir        string
}

func newResolveCommand() *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every required module to a verified upstream commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.manifestPath, "manifest", "go.mod", "path to the module manifest (go.mod-style)")
	cmd.Flags().StringVar(&opts.checksumPath, "checksum", "go.sum", "path to the checksum file (go.sum-style)")
	cmd.Flags().StringVar(&opts.discoveryPath, "discovery", "", "optional pre-resolved discovery JSON file")
	cmd.Flags().StringVar(&opts.outDir, "out", ".", "directory to write the two include files into")
	return cmd
}

func runResolve(ctx context.Context, opts *resolveOptions) error {
	cfg := appconfig.Load()
	log := applog.New(applog.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	manifest, err := gomodfile.ParseManifest(opts.manifestPath)
	if err != nil {
		return fmt.Errorf("modvcs: %w", err)
	}
	withSource, moduleFileOnly, err := gomodfile.ParseChecksumFile(opts.checksumPath)
	if err != nil {
		return fmt.Errorf("modvcs: %w", err)
	}
	var discovery []driver.DiscoveryRecord
	if opts.discoveryPath != "" {
		discovery, err = loadDiscovery(opts.discoveryPath)
		if err != nil {
			return fmt.Errorf("modvcs: %w", err)
		}
	}

	caches := cachestore.Open(cfg.Cache.Dir, log)
	defer caches.Save()

	ovStore := overrides.Open(cfg.Cache.Dir, log)
	caches.Metadata.Prune(func(_, _ string, e cachestore.MetadataEntry) bool {
		return len(e.Commit) == 40 && e.VCSURL != "" && ovStore.IsAllowed(e.VCSURL)
	})

	git := gitexec.New(appconfig.GitEnv())
	bareCloneDir := filepath.Join(cfg.Cache.Dir, "repos")

	refs := gitremote.New(git, caches.LsRemote, bareCloneDir, cfg.Network.LsRemote, log)
	pseudo := pseudoversion.New(git, bareCloneDir, pseudoversion.Timeouts{
		Clone: cfg.Network.Clone, Fetch: cfg.Network.Fetch, Log: cfg.Network.Log,
	}, log)
	prober := vanity.NewHTTPProber(&http.Client{Timeout: cfg.Network.LsRemote})
	deriver := vanity.New(ovStore, caches.Vanity, prober, log)
	resolver := metadata.New(metadataCacheAdapter{caches.Metadata}, deriver, refs, pseudo, nil, ovStore.IsAllowed, log)
	verifier := verify.New(git, verifyCacheAdapter{caches.Verification}, bareCloneDir, cfg.Verify.MaxAge, verify.Timeouts{
		Fetch: cfg.Network.Fetch, Unshallow: cfg.Network.Unshallow, LsRemote: cfg.Network.LsRemote, Log: cfg.Network.Log,
	}, log)

	d := driver.New(manifest, resolver, verifier, cfg.Verify.Workers, log, caches.Save)
	result, err := d.Run(ctx, withSource, moduleFileOnly, discovery)
	if err != nil {
		return fmt.Errorf("modvcs: %w", err)
	}

	log.Info("resolution complete",
		"total", result.Summary.Total, "with_origin", result.Summary.WithOrigin,
		"derived", result.Summary.Derived, "skipped", len(result.Summary.Skipped),
		"substitutions", len(result.Summary.Substitutions))

	return writeIncludeFiles(opts.outDir, result)
}

// loadDiscovery reads the optional external discovery JSON. Module paths
// are run through UnescapePath since this file may echo the on-disk
// `!`-escaped form of a GOMODCACHE directory listing; UnescapePath is a
// no-op on a path that is already unescaped.
func loadDiscovery(path string) ([]driver.DiscoveryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read discovery file: %w", err)
	}
	var records []driver.DiscoveryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse discovery file: %w", err)
	}
	for i := range records {
		if unescaped, err := gomodfile.UnescapePath(records[i].ModulePath); err == nil {
			records[i].ModulePath = unescaped
		}
	}
	return records, nil
}

// writeIncludeFiles emits the two include files a downstream build
// system consumes: a repository list (one `url; rev=...; branch=...`
// line per unique (url, commit)) and a compact per-module JSON array.
// Textual emission is deliberately minimal — only the fields the
// downstream fetcher contract names.
func writeIncludeFiles(dir string, result *driver.Result) error {
	type jsonRecord struct {
		Module    string `json:"module"`
		Version   string `json:"version"`
		VCSHash   string `json:"vcs_hash"`
		Timestamp string `json:"timestamp"`
		Subdir    string `json:"subdir"`
		VCSRef    string `json:"vcs_ref"`
	}

	seen := make(map[string]bool)
	var repoLines []string
	var jsonRecords []jsonRecord

	for _, rec := range result.Records {
		hash := modrecord.PerCommitHash(rec.VCSURL, rec.VCSHash)
		repoKey := rec.VCSURL + "@" + rec.VCSHash
		if !seen[repoKey] {
			seen[repoKey] = true
			branchPart := "nobranch=1"
			if rec.Branch != "" {
				branchPart = fmt.Sprintf("branch=%s", rec.Branch)
			}
			repoLines = append(repoLines, fmt.Sprintf("%s; rev=%s; %s; destsuffix=vcs_cache/%s",
				rec.VCSURL, rec.VCSHash, branchPart, hash))
		}
		jsonRecords = append(jsonRecords, jsonRecord{
			Module: rec.ModulePath, Version: rec.Version, VCSHash: hash,
			Timestamp: rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Subdir: rec.Subdir, VCSRef: rec.VCSRef,
		})
	}

	incPath := filepath.Join(dir, "go-modules-src.inc")
	var incBody string
	for _, line := range repoLines {
		incBody += line + "\n"
	}
	if err := os.WriteFile(incPath, []byte(incBody), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", incPath, err)
	}

	jsonPath := filepath.Join(dir, "go-modules.json")
	jsonBody, err := json.MarshalIndent(jsonRecords, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal module records: %w", err)
	}
	if err := os.WriteFile(jsonPath, jsonBody, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", jsonPath, err)
	}
	return nil
}
