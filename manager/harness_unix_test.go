//go:build !windows

package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mockyard/engine"
	"mockyard/process"
	"mockyard/store"
)

// The control stand-in keeps container state as files under $BASE_DIR/.engine, one per
// container, holding the engine state string. A project's behaviour is switched by writing
// $BASE_DIR/.mode-<name>.
const controlScript = `action="$1"
name="$2"
state="$BASE_DIR/.engine"
mkdir -p "$state"
mode=ok
[ -f "$BASE_DIR/.mode-$name" ] && mode=$(cat "$BASE_DIR/.mode-$name")
echo "$action $name $3 network=$DOCKER_NETWORK"
case "$action" in
start)
  case "$mode" in
  hang)
    echo $$ > "$BASE_DIR/.pid-$name"
    sleep 30
    ;;
  fail)
    echo "build failed: image not found" >&2
    exit 4
    ;;
  crash)
    echo exited > "$state/mock-$name"
    echo "Traceback: imposter refused config" > "$state/mock-$name.log"
    ;;
  *)
    echo running > "$state/mock-$name"
    ;;
  esac
  ;;
stop)
  if [ ! -f "$state/mock-$name" ]; then
    echo "Error: No such container: mock-$name" >&2
    exit 1
  fi
  if [ "$mode" = stuck ]; then
    echo "permission denied" >&2
    exit 5
  fi
  rm -f "$state/mock-$name" "$state/mock-$name.log"
  ;;
*)
  exit 2
  ;;
esac
`

const generateScript = `for arg in "$@"; do
  case "$arg" in
  --project=*) project="${arg#--project=}" ;;
  --output=*) output="${arg#--output=}" ;;
  esac
done
if [ -f "$BASE_DIR/.genfail-$project" ]; then
  echo "wsdl parse error at line 3" >&2
  exit 3
fi
mkdir -p "$output/generated"
echo "$@" > "$output/generated/args.txt"
echo "generated $project"
`

// fileEngine reads the control stand-in's state files.
type fileEngine struct {
	dir string

	mu          sync.Mutex
	networks    map[string]bool
	createCalls int
	existsErr   error
	inspectErr  error
}

func (e *fileEngine) NetworkExists(_ context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.existsErr != nil {
		return false, e.existsErr
	}
	return e.networks[name], nil
}

func (e *fileEngine) CreateNetwork(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createCalls++
	e.networks[name] = true
	return nil
}

func (e *fileEngine) ListRunning(ctx context.Context, name string) ([]engine.Instance, error) {
	inst, err := e.Inspect(ctx, name)
	if err != nil || inst == nil || !inst.Running() {
		return nil, err
	}
	return []engine.Instance{*inst}, nil
}

func (e *fileEngine) Inspect(_ context.Context, name string) (*engine.Instance, error) {
	e.mu.Lock()
	inspectErr := e.inspectErr
	e.mu.Unlock()
	if inspectErr != nil {
		return nil, inspectErr
	}
	raw, err := os.ReadFile(filepath.Join(e.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &engine.Instance{ID: "id-" + name, Name: name, State: strings.TrimSpace(string(raw))}, nil
}

func (e *fileEngine) Logs(_ context.Context, name string, _ int) (string, error) {
	raw, err := os.ReadFile(filepath.Join(e.dir, name+".log"))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(raw), err
}

type harness struct {
	baseDir    string
	scriptDir  string
	engine     *fileEngine
	scripts    *ScriptHost
	containers *ContainerManager
	generator  *Generator
	store      *store.MemoryStore
	service    *WorkspaceService
}

func newHarness(t *testing.T, opts ContainerOptions) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		baseDir:   filepath.Join(root, "mocks"),
		scriptDir: filepath.Join(root, "scripts"),
	}
	require.NoError(t, os.MkdirAll(h.baseDir, 0o755))
	require.NoError(t, os.MkdirAll(h.scriptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.scriptDir, ControlScript), []byte(controlScript), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(h.scriptDir, GenerateScript), []byte(generateScript), 0o644))

	h.engine = &fileEngine{dir: filepath.Join(h.baseDir, ".engine"), networks: map[string]bool{}}

	var err error
	h.scripts, err = NewScriptHost(process.NewRunner(), "/bin/sh", h.scriptDir, h.baseDir, "mocknet", nil)
	require.NoError(t, err)

	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	if opts.ReadinessWindow == 0 {
		opts.ReadinessWindow = 200 * time.Millisecond
	}
	h.containers = NewContainerManager(h.scripts, h.engine, nil, nil, opts)
	h.generator = NewGenerator(h.scripts, nil)
	h.store = store.NewMemoryStore()
	h.service = NewWorkspaceService(h.store, h.scripts, h.generator, h.containers, nil)
	return h
}

// workspace creates the project directory the controller requires before a start.
func (h *harness) workspace(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(h.baseDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func (h *harness) setMode(t *testing.T, name, mode string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.baseDir, ".mode-"+name), []byte(mode), 0o644))
}
