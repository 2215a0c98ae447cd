// Command treeserve ingests gzip-compressed lstat dumps into an
// in-memory aggregation tree and serves it over HTTP as JSON.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wtsi-hgi/treeserve/internal/builder"
	"github.com/wtsi-hgi/treeserve/internal/httpapi"
	"github.com/wtsi-hgi/treeserve/internal/persist"
	"github.com/wtsi-hgi/treeserve/internal/tree"
	"github.com/wtsi-hgi/treeserve/internal/watchdog"
)

var (
	lstatFlag            string
	serialFlag           string
	dumpFlag             string
	portFlag             uint16
	ipFlag               string
	threadsFlag          int
	memLimitFlag         uint64
	memCheckIntervalFlag uint64
)

func init() {
	rootCmd.Flags().StringVar(&lstatFlag, "lstat", "", "comma/whitespace-separated lstat dump paths")
	rootCmd.Flags().StringVar(&serialFlag, "serial", "", "path to reload a prior tree dump from (not implemented)")
	rootCmd.Flags().StringVar(&dumpFlag, "dump", "", "path to write a SQLite snapshot of the finalized tree to")
	rootCmd.Flags().Uint16Var(&portFlag, "port", 8080, "HTTP listen port")
	rootCmd.Flags().StringVar(&ipFlag, "ip", "0.0.0.0", "HTTP listen address")
	rootCmd.Flags().IntVar(&threadsFlag, "threads", 1, "reserved for future parallel ingest")
	rootCmd.Flags().Uint64Var(&memLimitFlag, "mem_limit", 4096, "resident memory limit in MB, 0 disables the watchdog")
	rootCmd.Flags().Uint64Var(&memCheckIntervalFlag, "mem_check_interval", 5, "watchdog poll interval in seconds")
}

var rootCmd = &cobra.Command{
	Use:   "treeserve",
	Short: "Ingest lstat dumps into an aggregation tree and serve it over HTTP",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()

	if serialFlag != "" {
		return fmt.Errorf("--serial is not implemented: %w", persist.ErrNotImplemented)
	}
	paths := splitPaths(lstatFlag)
	if len(paths) == 0 {
		return fmt.Errorf("--lstat is required")
	}

	wd := watchdog.New(memLimitFlag*1024*1024, time.Duration(memCheckIntervalFlag)*time.Second, log)
	wd.Start()
	defer wd.Stop()

	fs := osfs.New("/")
	b := builder.New(fs, log)

	log.WithField("files", paths).Info("starting ingest")
	b.IngestAll(paths)
	log.WithFields(logrus.Fields{
		"lines_skipped": b.LinesSkipped(),
		"files_skipped": b.FilesSkipped(),
	}).Info("ingest complete, finalizing")

	b.Finalize()

	if dumpFlag != "" {
		if err := persist.Dump(b.Tree(), dumpFlag); err != nil {
			log.WithError(err).Error("failed to write tree dump")
		}
	}

	handle := tree.NewHandle()
	handle.Publish(b.Tree())

	server := httpapi.New(handle, log)
	addr := fmt.Sprintf("%s:%d", ipFlag, portFlag)
	httpServer := &http.Server{Addr: addr, Handler: server}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// splitPaths accepts a comma- and/or whitespace-separated list of paths,
// the format the --lstat flag takes.
func splitPaths(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
