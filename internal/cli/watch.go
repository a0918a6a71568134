package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"veritasai-be/internal/dto"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultSettle = 2 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload files dropped into a folder",
	Long: `Watches a folder and uploads every supported file that is created or
rewritten in it, on behalf of the given user. A file is uploaded once it has
been quiet for the settle period. Unchanged files are detected as duplicates.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchUser     string
	watchSettle   time.Duration
	watchExisting bool
)

func init() {
	watchCmd.Flags().StringVarP(&watchUser, "user", "u", "", "Owner of the uploaded documents (required)")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", defaultSettle, "Quiet period before a changed file is uploaded")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "Upload files already in the folder on start")
	_ = watchCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	userId, err := uuid.Parse(watchUser)
	if err != nil {
		return fmt.Errorf("invalid user id %q", watchUser)
	}
	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	return withServices(cmd, func(ctx context.Context, s *Services) error {
		w := newFolderWatcher(s.Documents, s.Formats, userId, watchSettle, cmd.OutOrStdout())
		if watchExisting {
			if err := w.ingestExisting(ctx, dir); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", dir)
		return w.Run(ctx, dir)
	})
}

// Uploader is the part of the document service the watcher needs.
type Uploader interface {
	Upload(ctx context.Context, userId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.UploadDocumentResponse, error)
}

type formatChecker interface {
	Supported(ext string) bool
}

type folderWatcher struct {
	uploader Uploader
	formats  formatChecker
	userId   uuid.UUID
	settle   time.Duration
	out      io.Writer

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func newFolderWatcher(up Uploader, formats formatChecker, userId uuid.UUID, settle time.Duration, out io.Writer) *folderWatcher {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &folderWatcher{
		uploader: up,
		formats:  formats,
		userId:   userId,
		settle:   settle,
		out:      out,
		pending:  make(map[string]*time.Timer),
	}
}

// Run blocks until ctx is done, then waits for in-flight uploads.
func (w *folderWatcher) Run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			fmt.Fprintf(w.out, "watch error: %v\n", err)
		}
	}
}

// handleEvent (re)arms the settle timer for a created or written file.
func (w *folderWatcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !w.accepts(ev.Name) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.pending[ev.Name]; ok && prev.Stop() {
		w.wg.Done()
	}
	path := ev.Name
	var t *time.Timer
	w.wg.Add(1)
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

func (w *folderWatcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
	return ext != "" && w.formats.Supported(ext)
}

func (w *folderWatcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w.out, "skip %s: %v\n", filepath.Base(path), err)
		return
	}
	res, err := w.uploader.Upload(ctx, w.userId, &dto.UploadDocumentRequest{
		FileName: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		fmt.Fprintf(w.out, "upload %s failed: %v\n", filepath.Base(path), err)
		return
	}
	if res.Duplicate {
		fmt.Fprintf(w.out, "unchanged %s\n", filepath.Base(path))
		return
	}
	fmt.Fprintf(w.out, "uploaded %s as %s\n", filepath.Base(path), res.Document.Id)
}

func (w *folderWatcher) ingestExisting(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !w.accepts(path) {
			continue
		}
		w.ingest(ctx, path)
	}
	return nil
}

// stop cancels pending uploads and waits for running ones.
func (w *folderWatcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
