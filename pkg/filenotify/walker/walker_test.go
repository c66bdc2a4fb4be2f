package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filenotify/pkg/filenotify/manifest"
	"github.com/jamesainslie/filenotify/pkg/filenotify/processor"
)

const listName = "mailaddresses.txt"

type call struct {
	dir   string
	names []string
}

type fakeProcessor struct {
	calls  []call
	failOn string
}

func (p *fakeProcessor) Process(_ context.Context, dir string, names []string) (processor.Result, error) {
	p.calls = append(p.calls, call{dir: dir, names: names})
	if dir == p.failOn {
		return processor.Result{Dir: dir}, errors.New("notification failed")
	}
	return processor.Result{Dir: dir, State: processor.StateNotified, Changed: manifest.Manifest{"x": 1}}, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

// buildTree creates:
//
//	root/mailaddresses.txt, root/top.txt
//	root/a/mailaddresses.txt, root/a/one.txt, root/a/.hidden.txt, root/a/nested/
//	root/a/sub/mailaddresses.txt, root/a/sub/deep.txt
//	root/b/plain.txt                         (no list)
//	root/.git/mailaddresses.txt              (dot directory)
//	root/cache/mailaddresses.txt             (excluded by pattern)
//	root/c/mailaddresses.txt, root/c/keep.txt, root/c/skip.tmp
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{
		listName, "top.txt",
		"a/" + listName, "a/one.txt", "a/.hidden.txt",
		"a/sub/" + listName, "a/sub/deep.txt",
		"b/plain.txt",
		".git/" + listName,
		"cache/" + listName,
		"c/" + listName, "c/keep.txt", "c/skip.tmp",
	} {
		writeFile(t, filepath.Join(root, filepath.FromSlash(p)))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "nested"), 0o755))
	return root
}

func newWalker(t *testing.T, root string, proc DirProcessor, exclude ...string) *Walker {
	t.Helper()
	w, err := New(Options{Root: root, RecipientsName: listName, Exclude: exclude, Processor: proc})
	require.NoError(t, err)
	return w
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Processor: &fakeProcessor{}})
	assert.Error(t, err)

	_, err = New(Options{RecipientsName: listName})
	assert.Error(t, err)

	_, err = New(Options{RecipientsName: listName, Processor: &fakeProcessor{}, Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestRun_VisitsWatchedDirectoriesInOrder(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	proc := &fakeProcessor{}
	w := newWalker(t, root, proc, "cache", "*.tmp")

	report, err := w.Run(context.Background())
	require.NoError(t, err)

	var dirs []string
	for _, c := range proc.calls {
		dirs = append(dirs, c.dir)
	}
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "sub"),
		filepath.Join(root, "c"),
	}, dirs)

	assert.Equal(t, 4, report.Watched)
	assert.Len(t, report.Results, 4)
	assert.Equal(t, 4, report.Count(processor.StateNotified))
	assert.Equal(t, 4, report.ChangedFiles())
	assert.False(t, report.Finished.Before(report.Started))
}

func TestRun_CandidateNames(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	proc := &fakeProcessor{}
	w := newWalker(t, root, proc, "*.tmp")

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	byDir := map[string][]string{}
	for _, c := range proc.calls {
		byDir[c.dir] = c.names
	}

	assert.ElementsMatch(t, []string{listName, "top.txt"}, byDir[root])
	assert.ElementsMatch(t, []string{listName, "one.txt"}, byDir[filepath.Join(root, "a")],
		"dot files and subdirectories are not candidates")
	assert.ElementsMatch(t, []string{listName, "keep.txt"}, byDir[filepath.Join(root, "c")])
}

func TestRun_SymlinkedFileIsCandidate(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, listName))
	writeFile(t, filepath.Join(root, "target.txt"))
	require.NoError(t, os.Symlink(filepath.Join(root, "target.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling.txt")))

	proc := &fakeProcessor{}
	_, err := newWalker(t, root, proc).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, proc.calls, 1)
	assert.ElementsMatch(t, []string{listName, "target.txt", "link.txt"}, proc.calls[0].names)
}

func TestRun_FatalErrorStopsRun(t *testing.T) {
	t.Parallel()
	root := buildTree(t)
	proc := &fakeProcessor{failOn: filepath.Join(root, "a")}
	w := newWalker(t, root, proc, "cache")

	report, err := w.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, filepath.Join(root, "a"), report.Failed)
	assert.Len(t, proc.calls, 2, "directories after the failure are not processed")
	assert.Len(t, report.Results, 1)
}

func TestRun_CancelledBetweenDirectories(t *testing.T) {
	t.Parallel()
	root := buildTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	proc := &cancellingProcessor{cancel: cancel}
	w := newWalker(t, root, proc, "cache")

	report, err := w.Run(ctx)
	require.Error(t, err)
	// Discovery may or may not observe the cancellation; either way at most
	// one pass ran.
	assert.LessOrEqual(t, proc.calls, 1)
	_ = report
}

type cancellingProcessor struct {
	cancel context.CancelFunc
	calls  int
}

func (p *cancellingProcessor) Process(_ context.Context, dir string, _ []string) (processor.Result, error) {
	p.calls++
	p.cancel()
	return processor.Result{Dir: dir, State: processor.StateNoOp}, nil
}

func TestRun_RootErrors(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := newWalker(t, missing, &fakeProcessor{}).Run(context.Background())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file)
	_, err = newWalker(t, file, &fakeProcessor{}).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_HiddenRootIsScanned(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), ".shared")
	writeFile(t, filepath.Join(root, listName))

	proc := &fakeProcessor{}
	_, err := newWalker(t, root, proc).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, proc.calls, 1)
}

func TestRun_EndToEndWithProcessor(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, listName))
	writeFile(t, filepath.Join(root, "a.txt"))
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.txt"), mtime, mtime))

	codec, err := manifest.NewCodec(".MANIFEST")
	require.NoError(t, err)
	notifier := &countingNotifier{}
	proc, err := processor.New(processor.Options{
		Store:    codec,
		Builder:  manifest.NewBuilder(".MANIFEST", listName),
		Notifier: notifier,
	})
	require.NoError(t, err)
	w := newWalker(t, root, proc)

	report, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(processor.StateNotified))

	report, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(processor.StateNoOp))
	assert.Equal(t, 1, notifier.n)

	m, err := codec.Read(root)
	require.NoError(t, err)
	assert.Equal(t, manifest.Manifest{"a.txt": manifest.StampOf(mtime)}, m)
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify(context.Context, string, manifest.Manifest) error {
	c.n++
	return nil
}
