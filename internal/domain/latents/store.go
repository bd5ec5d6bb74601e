package latents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"xtts-server-go/internal/platform/errors"
	"xtts-server-go/internal/platform/logging"
)

// ConditioningLatents is the voice identity artifact: precomputed vectors
// that let the model imitate a speaker without reprocessing reference audio.
// Field order is fixed so repeated stores are byte-stable.
type ConditioningLatents struct {
	GPTCondLatent    []float32 `json:"gpt_cond_latent"`
	SpeakerEmbedding []float32 `json:"speaker_embedding"`
}

// Validate checks presence of both vectors. Lengths are model-defined and
// deliberately not checked here; the model folder is the authority on
// dimensionality.
func (l *ConditioningLatents) Validate(op string) error {
	if l == nil {
		return errors.New(errors.KindValidation, op, "latents payload is empty")
	}
	if len(l.GPTCondLatent) == 0 {
		return errors.New(errors.KindValidation, op, "missing required key 'gpt_cond_latent' in latents")
	}
	if len(l.SpeakerEmbedding) == 0 {
		return errors.New(errors.KindValidation, op, "missing required key 'speaker_embedding' in latents")
	}
	return nil
}

// Extractor derives conditioning latents from a reference audio clip. The
// synthesis engine provides this capability.
type Extractor interface {
	ExtractConditioning(ctx context.Context, audioPath string) (*ConditioningLatents, error)
}

// Store persists latent bundles under <root>/<language>/<speaker>.json.
// Language and speaker are lowercased on both write and read.
type Store struct {
	root      string
	extractor Extractor
	logger    *logging.Logger
}

func NewStore(root string, extractor Extractor, logger *logging.Logger) *Store {
	return &Store{
		root:      root,
		extractor: extractor,
		logger:    logger,
	}
}

func (s *Store) Root() string { return s.root }

// keyOf normalizes and validates the two-level key. Traversal tokens and
// path separators are rejected before any filesystem work.
func keyOf(op, language, speaker string) (string, string, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	speaker = strings.ToLower(strings.TrimSpace(speaker))
	for _, part := range []string{language, speaker} {
		if part == "" {
			return "", "", errors.New(errors.KindValidation, op, "language and speaker_name must not be empty")
		}
		if strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
			return "", "", errors.New(errors.KindValidation, op,
				fmt.Sprintf("invalid identifier %q", part))
		}
	}
	return language, speaker, nil
}

func (s *Store) pathFor(language, speaker string) string {
	return filepath.Join(s.root, language, speaker+".json")
}

// Save writes a bundle, overwriting any previous one for the same key.
// The write goes through a temp file and rename so concurrent readers never
// observe a partial file.
func (s *Store) Save(language, speaker string, bundle *ConditioningLatents) (string, error) {
	const op = "latents.save"

	language, speaker, err := keyOf(op, language, speaker)
	if err != nil {
		return "", err
	}
	if err := bundle.Validate(op); err != nil {
		return "", err
	}

	langDir := filepath.Join(s.root, language)
	if err := os.MkdirAll(langDir, 0o755); err != nil {
		return "", errors.Wrap(errors.KindIO, op, "create language folder", err)
	}

	data, err := sonic.Marshal(bundle)
	if err != nil {
		return "", errors.Wrap(errors.KindIO, op, "encode latents", err)
	}

	finalPath := s.pathFor(language, speaker)
	tmpPath := finalPath + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", errors.Wrap(errors.KindIO, op, "write latents", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", errors.Wrap(errors.KindIO, op, "replace latents file", err)
	}

	s.logger.InfoTag("LATENTS", "stored latents for speaker '%s' language '%s' at %s", speaker, language, finalPath)
	return finalPath, nil
}

// Load reads the bundle stored for (language, speaker).
func (s *Store) Load(language, speaker string) (*ConditioningLatents, error) {
	const op = "latents.load"

	language, speaker, err := keyOf(op, language, speaker)
	if err != nil {
		return nil, err
	}

	path := s.pathFor(language, speaker)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.KindNotFound, op,
				fmt.Sprintf("no stored latents for speaker '%s' in language '%s'", speaker, language))
		}
		return nil, errors.Wrap(errors.KindIO, op, "read latents", err)
	}

	var bundle ConditioningLatents
	if err := sonic.Unmarshal(data, &bundle); err != nil {
		return nil, errors.Wrap(errors.KindValidation, op, "parse latents file", err)
	}
	if err := bundle.Validate(op); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Exists reports whether a bundle is stored for (language, speaker).
func (s *Store) Exists(language, speaker string) bool {
	language, speaker, err := keyOf("latents.exists", language, speaker)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(s.pathFor(language, speaker))
	return statErr == nil
}

// ExtractFrom derives latents from raw reference audio via a scoped
// temporary file. The temp file is removed on every exit path.
func (s *Store) ExtractFrom(ctx context.Context, audio []byte) (*ConditioningLatents, error) {
	const op = "latents.extract"

	if s.extractor == nil {
		return nil, errors.New(errors.KindSynthesis, op, "engine does not support conditioning extraction")
	}

	tmpPath := filepath.Join(os.TempDir(), uuid.NewString()+".wav")
	if err := os.WriteFile(tmpPath, audio, 0o644); err != nil {
		return nil, errors.Wrap(errors.KindIO, op, "write scratch audio", err)
	}
	defer os.Remove(tmpPath)

	bundle, err := s.extractor.ExtractConditioning(ctx, tmpPath)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesis, op, "conditioning extraction failed", err)
	}
	if err := bundle.Validate(op); err != nil {
		return nil, err
	}

	s.logger.InfoTag("LATENTS", "latents created from %d bytes of reference audio", len(audio))
	return bundle, nil
}
