package voices

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"xtts-server-go/internal/platform/errors"
)

// Speaker is the rich listing entry served by /speakers.
type Speaker struct {
	Name       string `json:"name"`
	VoiceID    string `json:"voice_id"`
	PreviewURL string `json:"preview_url"`
}

// ListSpeakerFiles returns the base names of reference clips in the speaker
// folder, without extensions, sorted.
func (r *Resolver) ListSpeakerFiles() ([]string, error) {
	const op = "voices.list"

	entries, err := os.ReadDir(r.Root(RootSpeaker))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.KindIO, op, "read speaker folder", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(strings.ToLower(name), ".wav") {
			names = append(names, strings.TrimSuffix(name, name[len(name)-4:]))
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListSpeakers returns the rich speaker descriptors, with preview URLs
// pointing at the /sample endpoint.
func (r *Resolver) ListSpeakers(baseURL string) ([]Speaker, error) {
	names, err := r.ListSpeakerFiles()
	if err != nil {
		return nil, err
	}

	speakers := make([]Speaker, 0, len(names))
	for _, name := range names {
		speakers = append(speakers, Speaker{
			Name:       name,
			VoiceID:    name,
			PreviewURL: fmt.Sprintf("%s/sample/%s.wav", strings.TrimSuffix(baseURL, "/"), name),
		})
	}
	return speakers, nil
}

// ListModels returns the model directories available under the model root.
func (r *Resolver) ListModels() ([]string, error) {
	const op = "voices.list_models"

	entries, err := os.ReadDir(r.Root(RootModel))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.KindIO, op, "read model folder", err)
	}

	models := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			models = append(models, entry.Name())
		}
	}
	sort.Strings(models)
	return models, nil
}
