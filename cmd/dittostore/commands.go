package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/catalog"
	"github.com/marmos91/dittostore/pkg/config"
	"github.com/marmos91/dittostore/pkg/files"
	"github.com/marmos91/dittostore/pkg/share"
)

// loadRuntime loads the configuration and builds the components. One-shot
// commands keep stdout for their own output, so logs that would go there
// are sent to stderr.
func loadRuntime(ctx context.Context, fs *pflag.FlagSet, keepStdout bool) (*config.Runtime, error) {
	configPath, _ := fs.GetString("config")

	cfg, err := config.Load(configPath, fs)
	if err != nil {
		return nil, err
	}
	if !keepStdout && cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	return config.Build(ctx, cfg)
}

// withRuntime runs fn against a freshly built runtime and releases it.
func withRuntime(ctx context.Context, fs *pflag.FlagSet, fn func(rt *config.Runtime) error) error {
	rt, err := loadRuntime(ctx, fs, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			logger.Warn("Failed to release runtime: %v", err)
		}
	}()
	return fn(rt)
}

func identityFlags(fs *pflag.FlagSet) {
	fs.StringP("tenant", "t", "", "Tenant the file belongs to (required)")
	fs.StringP("actor", "a", "", "User performing the operation (required)")
}

// ============================================================================
// init
// ============================================================================

func initCommand() *command {
	return &command{
		name:    "init",
		summary: "Write a configuration file with default values",
		usage:   "init [--config path] [--force]",
		flags: func(fs *pflag.FlagSet) {
			fs.BoolP("force", "f", false, "Overwrite an existing configuration file")
		},
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			configPath, _ := fs.GetString("config")
			force, _ := fs.GetBool("force")

			path, err := config.InitConfig(configPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Configuration written to %s\n", path)
			return nil
		},
	}
}

// ============================================================================
// put
// ============================================================================

func putCommand() *command {
	return &command{
		name:    "put",
		summary: "Upload a file, or a new version of one with --replace",
		usage:   "put --tenant T --actor A --module M [flags] <path|->",
		flags: func(fs *pflag.FlagSet) {
			identityFlags(fs)
			fs.StringP("module", "m", "", "Functional area, e.g. real-estate (required for new files)")
			fs.String("entity-type", "", "Kind of domain record the file belongs to")
			fs.String("entity-id", "", "Identifier of the domain record")
			fs.String("name", "", "Filename to record (default: base name of path; required for stdin)")
			fs.String("mime", "", "MIME type (default: sniffed from content)")
			fs.String("title", "", "Title")
			fs.String("description", "", "Description")
			fs.StringSlice("tag", nil, "Tag (repeatable)")
			fs.String("category", "", "Category")
			fs.String("replace", "", "Id of the file this upload supersedes")
		},
		run: runPut,
	}
}

func runPut(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	if err := requireArgs("put", args, "path"); err != nil {
		return err
	}
	if err := requireFlags(fs, "tenant", "actor"); err != nil {
		return err
	}

	tenant, _ := fs.GetString("tenant")
	actor, _ := fs.GetString("actor")
	module, _ := fs.GetString("module")
	entityType, _ := fs.GetString("entity-type")
	entityID, _ := fs.GetString("entity-id")
	name, _ := fs.GetString("name")
	mimeType, _ := fs.GetString("mime")
	replaceID, _ := fs.GetString("replace")

	var body io.Reader
	if args[0] == "-" {
		if name == "" {
			return fmt.Errorf("--name is required when reading from stdin")
		}
		body = a.stdin
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		body = f
		if name == "" {
			name = filepath.Base(args[0])
		}
	}

	meta := catalog.Metadata{}
	meta.Title, _ = fs.GetString("title")
	meta.Description, _ = fs.GetString("description")
	meta.Tags, _ = fs.GetStringSlice("tag")
	meta.Category, _ = fs.GetString("category")

	return withRuntime(ctx, fs, func(rt *config.Runtime) error {
		var (
			obj *catalog.StoredObject
			err error
		)
		if replaceID != "" {
			req := files.ReplaceRequest{
				Tenant:   tenant,
				ID:       replaceID,
				Actor:    actor,
				Filename: name,
				MimeType: mimeType,
				Body:     body,
			}
			// Metadata is inherited unless one of its flags was given.
			if fs.Changed("title") || fs.Changed("description") || fs.Changed("tag") || fs.Changed("category") {
				req.Metadata = &meta
			}
			obj, err = rt.Service.Replace(ctx, req)
		} else {
			if module == "" {
				return fmt.Errorf("--module is required")
			}
			obj, err = rt.Service.Upload(ctx, files.UploadRequest{
				Tenant:     tenant,
				Module:     module,
				EntityType: entityType,
				EntityID:   entityID,
				Filename:   name,
				Actor:      actor,
				MimeType:   mimeType,
				Metadata:   meta,
				Body:       body,
			})
		}
		if err != nil {
			return err
		}

		printObjectLine(a.stdout, obj)
		return nil
	})
}

// ============================================================================
// get / open
// ============================================================================

func getCommand() *command {
	return &command{
		name:    "get",
		summary: "Print the record of a file as JSON",
		usage:   "get --tenant T --actor A <id>",
		flags:   identityFlags,
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			if err := requireArgs("get", args, "id"); err != nil {
				return err
			}
			if err := requireFlags(fs, "tenant", "actor"); err != nil {
				return err
			}
			tenant, _ := fs.GetString("tenant")
			actor, _ := fs.GetString("actor")

			return withRuntime(ctx, fs, func(rt *config.Runtime) error {
				obj, err := rt.Service.Get(ctx, tenant, args[0], actor)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, obj)
			})
		},
	}
}

func openCommand() *command {
	return &command{
		name:    "open",
		summary: "Download the content of a file, directly or through a share grant",
		usage:   "open --tenant T --actor A <id> | open --grant G [--code C]",
		flags: func(fs *pflag.FlagSet) {
			identityFlags(fs)
			fs.StringP("output", "o", "", "Write content to this file instead of stdout")
			fs.String("grant", "", "Open through this share grant instead of as an actor")
			fs.String("code", "", "Access code of the grant")
		},
		run: runOpen,
	}
}

func runOpen(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	grantID, _ := fs.GetString("grant")
	code, _ := fs.GetString("code")
	output, _ := fs.GetString("output")

	if grantID == "" {
		if err := requireArgs("open", args, "id"); err != nil {
			return err
		}
		if err := requireFlags(fs, "tenant", "actor"); err != nil {
			return err
		}
	}
	tenant, _ := fs.GetString("tenant")
	actor, _ := fs.GetString("actor")

	return withRuntime(ctx, fs, func(rt *config.Runtime) error {
		var (
			obj *catalog.StoredObject
			rc  io.ReadCloser
			err error
		)
		if grantID != "" {
			var res *share.Resolution
			res, rc, err = rt.Service.OpenShare(ctx, grantID, code)
			if err == nil {
				obj = res.Object
			}
		} else {
			obj, rc, err = rt.Service.Open(ctx, tenant, args[0], actor)
		}
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		dst := a.stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			dst = f
		}

		n, err := io.Copy(dst, rc)
		if err != nil {
			return fmt.Errorf("copy %s: %w", obj.ID, err)
		}
		logger.Debug("Wrote %d bytes of %s", n, obj.Filename)
		return nil
	})
}

// ============================================================================
// ls / versions
// ============================================================================

func lsCommand() *command {
	return &command{
		name:    "ls",
		summary: "List the files of a tenant the actor may read",
		usage:   "ls --tenant T --actor A [--module M] [--entity-type E --entity-id I] [--history]",
		flags: func(fs *pflag.FlagSet) {
			identityFlags(fs)
			fs.StringP("module", "m", "", "Only files of this module")
			fs.String("entity-type", "", "Only files of this entity type")
			fs.String("entity-id", "", "Only files of this entity")
			fs.Bool("history", false, "Include superseded versions")
		},
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			if err := requireFlags(fs, "tenant", "actor"); err != nil {
				return err
			}
			req := files.ListRequest{}
			req.Tenant, _ = fs.GetString("tenant")
			req.Actor, _ = fs.GetString("actor")
			req.Module, _ = fs.GetString("module")
			req.EntityType, _ = fs.GetString("entity-type")
			req.EntityID, _ = fs.GetString("entity-id")
			req.IncludeHistory, _ = fs.GetBool("history")

			return withRuntime(ctx, fs, func(rt *config.Runtime) error {
				objs, err := rt.Service.List(ctx, req)
				if err != nil {
					return err
				}
				return printObjects(a.stdout, objs)
			})
		},
	}
}

func versionsCommand() *command {
	return &command{
		name:    "versions",
		summary: "List every version of a file",
		usage:   "versions --tenant T --actor A <id>",
		flags:   identityFlags,
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			if err := requireArgs("versions", args, "id"); err != nil {
				return err
			}
			if err := requireFlags(fs, "tenant", "actor"); err != nil {
				return err
			}
			tenant, _ := fs.GetString("tenant")
			actor, _ := fs.GetString("actor")

			return withRuntime(ctx, fs, func(rt *config.Runtime) error {
				objs, err := rt.Service.Versions(ctx, tenant, args[0], actor)
				if err != nil {
					return err
				}
				return printObjects(a.stdout, objs)
			})
		},
	}
}

// ============================================================================
// rm
// ============================================================================

func rmCommand() *command {
	return &command{
		name:    "rm",
		summary: "Delete one version of a file",
		usage:   "rm --tenant T --actor A <id>",
		flags:   identityFlags,
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			if err := requireArgs("rm", args, "id"); err != nil {
				return err
			}
			if err := requireFlags(fs, "tenant", "actor"); err != nil {
				return err
			}
			tenant, _ := fs.GetString("tenant")
			actor, _ := fs.GetString("actor")

			return withRuntime(ctx, fs, func(rt *config.Runtime) error {
				if err := rt.Service.Delete(ctx, tenant, args[0], actor); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

// ============================================================================
// share / revoke
// ============================================================================

func shareCommand() *command {
	return &command{
		name:    "share",
		summary: "Issue a share grant on a file, or list its grants with --list",
		usage:   "share --tenant T --actor A [--with W] [--level view|download|edit] [--expires 24h] [--code C] <id>",
		flags: func(fs *pflag.FlagSet) {
			identityFlags(fs)
			fs.String("with", "", "Who the grant is for (informational)")
			fs.String("level", string(catalog.ShareView), "Grant level: view, download or edit")
			fs.Duration("expires", 0, "Grant lifetime (0 never expires)")
			fs.String("code", "", "Access code required to use the grant")
			fs.Bool("list", false, "List the grants of the file instead of issuing one")
		},
		run: runShare,
	}
}

func runShare(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	if err := requireArgs("share", args, "id"); err != nil {
		return err
	}
	if err := requireFlags(fs, "tenant", "actor"); err != nil {
		return err
	}
	tenant, _ := fs.GetString("tenant")
	actor, _ := fs.GetString("actor")
	list, _ := fs.GetBool("list")

	req := share.Request{}
	req.SharedWith, _ = fs.GetString("with")
	level, _ := fs.GetString("level")
	req.Level = catalog.ShareLevel(level)
	req.AccessCode, _ = fs.GetString("code")
	if expires, _ := fs.GetDuration("expires"); expires > 0 {
		at := time.Now().Add(expires)
		req.ExpiresAt = &at
	}

	return withRuntime(ctx, fs, func(rt *config.Runtime) error {
		if list {
			grants, err := rt.Service.ListShares(ctx, tenant, args[0], actor)
			if err != nil {
				return err
			}
			return printGrants(a.stdout, grants)
		}

		grant, err := rt.Service.Share(ctx, tenant, args[0], actor, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, grant.ID)
		return nil
	})
}

func revokeCommand() *command {
	return &command{
		name:    "revoke",
		summary: "Revoke a share grant",
		usage:   "revoke --tenant T --actor A <id> <grant-id>",
		flags:   identityFlags,
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			if err := requireArgs("revoke", args, "id", "grant-id"); err != nil {
				return err
			}
			if err := requireFlags(fs, "tenant", "actor"); err != nil {
				return err
			}
			tenant, _ := fs.GetString("tenant")
			actor, _ := fs.GetString("actor")

			return withRuntime(ctx, fs, func(rt *config.Runtime) error {
				grant, err := rt.Service.RevokeShare(ctx, tenant, args[0], actor, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Revoked %s at %s\n", grant.ID, grant.RevokedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

// ============================================================================
// gc / serve
// ============================================================================

func gcFlags(fs *pflag.FlagSet) {
	fs.Bool("gc-dry-run", false, "Report orphans without deleting them")
	fs.Bool("gc-full", false, "Also sweep the whole object store for unreferenced bytes")
}

func gcCommand() *command {
	return &command{
		name:    "gc",
		summary: "Remove orphaned bytes once",
		usage:   "gc [--gc-dry-run] [--gc-full]",
		flags:   gcFlags,
		run: func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
			return withRuntime(ctx, fs, func(rt *config.Runtime) error {
				stats, err := rt.Collector.RunNow(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, stats.Summary())
				return nil
			})
		},
	}
}

func serveCommand() *command {
	return &command{
		name:    "serve",
		summary: "Run the garbage collector and metrics endpoint until interrupted",
		usage:   "serve [--metrics] [--metrics-port N]",
		flags:   gcFlags,
		run:     runServe,
	}
}

func runServe(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	rt, err := loadRuntime(ctx, fs, true)
	if err != nil {
		return err
	}

	srv, err := rt.MetricsServer()
	if err != nil {
		_ = rt.Close(context.Background())
		return err
	}

	logger.Info("DittoStore serving: object_store=%s catalog=%s",
		rt.Config.ObjectStore.Type, rt.Config.Catalog.Type)

	rt.Collector.Start()

	serveErr := make(chan error, 1)
	if srv != nil {
		go func() { serveErr <- srv.Serve(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping...")
	case err = <-serveErr:
		if err != nil {
			logger.Error("Metrics server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.Config.Server.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if stopErr := srv.Stop(shutdownCtx); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	if closeErr := rt.Close(shutdownCtx); closeErr != nil && err == nil {
		err = closeErr
	}

	logger.Info("DittoStore stopped")
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
