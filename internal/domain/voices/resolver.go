package voices

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"xtts-server-go/internal/platform/errors"
)

// RootKind names one of the configured folder roots.
type RootKind string

const (
	RootSpeaker RootKind = "speaker"
	RootOutput  RootKind = "output"
	RootLatent  RootKind = "latent"
	RootModel   RootKind = "model"
)

// Resolver maps user-supplied relative identifiers onto configured roots.
// Identifiers containing a parent-traversal token are rejected before any
// joining or OS-level normalization happens.
type Resolver struct {
	mu    sync.RWMutex
	roots map[RootKind]string
}

func NewResolver(speaker, output, latent, model string) *Resolver {
	return &Resolver{
		roots: map[RootKind]string{
			RootSpeaker: speaker,
			RootOutput:  output,
			RootLatent:  latent,
			RootModel:   model,
		},
	}
}

// Resolve joins root and identifier. Existence is not checked; callers
// decide per operation whether the target must exist.
func (r *Resolver) Resolve(kind RootKind, identifier string) (string, error) {
	const op = "paths.resolve"

	if strings.Contains(identifier, "..") {
		return "", errors.New(errors.KindValidation, op,
			fmt.Sprintf("'..' in the file name %q is not allowed", identifier))
	}

	r.mu.RLock()
	root := r.roots[kind]
	r.mu.RUnlock()

	return filepath.Join(root, identifier), nil
}

// SetRoot replaces one configured root. The new root must be a usable
// directory: existing or creatable, and writable.
func (r *Resolver) SetRoot(kind RootKind, newRoot string) error {
	const op = "paths.set_root"

	if newRoot == "" {
		return errors.New(errors.KindValidation, op, "folder path must not be empty")
	}
	if err := os.MkdirAll(newRoot, 0o755); err != nil {
		return errors.Wrap(errors.KindValidation, op,
			fmt.Sprintf("%q is not a usable directory", newRoot), err)
	}
	probe := filepath.Join(newRoot, ".write_probe")
	f, err := os.Create(probe)
	if err != nil {
		return errors.Wrap(errors.KindValidation, op,
			fmt.Sprintf("%q is not writable", newRoot), err)
	}
	f.Close()
	os.Remove(probe)

	r.mu.Lock()
	r.roots[kind] = newRoot
	r.mu.Unlock()
	return nil
}

// Root returns the current root for kind.
func (r *Resolver) Root(kind RootKind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roots[kind]
}
