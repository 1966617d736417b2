package campaign

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/store"
)

// Template is a saved message body that can be picked into a project.
type Template struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SaveTemplate stores the given project's current message under a
// template name.
func (s *Store) SaveTemplate(ctx context.Context, projectID, name string) (Template, error) {
	name = strings.TrimSpace(name)
	p, ok := s.Get(projectID)
	if !ok {
		return Template{}, apperr.Newf(apperr.KindNotFound, "project %s not found", projectID)
	}
	text := strings.TrimSpace(p.MessageText)
	if name == "" || text == "" {
		return Template{}, apperr.New(apperr.KindInvalidInput, "template name or content missing")
	}

	now := s.now().UnixMilli()
	tpl := Template{
		ID:        uuid.NewString(),
		Name:      name,
		Text:      p.MessageText,
		ImageURL:  strings.TrimSpace(p.ImageURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.st.Put(ctx, store.TemplatePath(s.uid, tpl.ID), tpl); err != nil {
		return Template{}, apperr.Wrap(apperr.KindOf(err), "failed to save template", err)
	}
	return tpl, nil
}

// Templates lists saved templates, most recently updated first.
func (s *Store) Templates(ctx context.Context) ([]Template, error) {
	records, err := s.st.List(ctx, store.TemplatesPrefix(s.uid))
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(records))
	for _, rec := range records {
		var tpl Template
		if err := json.Unmarshal(rec.Data, &tpl); err != nil {
			s.logger.Warn("skipping undecodable template", "path", rec.Path, "error", err)
			continue
		}
		if tpl.ID == "" {
			tpl.ID = store.LastSegment(rec.Path)
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// PickTemplate applies a template to a project: message text, image
// and the selected-template marker.
func (s *Store) PickTemplate(ctx context.Context, projectID, templateID string) error {
	var tpl Template
	ok, err := s.st.Get(ctx, store.TemplatePath(s.uid, templateID), &tpl)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "template %s not found", templateID)
	}
	return s.Patch(ctx, projectID, map[string]any{
		"messageText":   tpl.Text,
		"imageUrl":      tpl.ImageURL,
		"selectedTplId": templateID,
	})
}

// DeleteTemplate removes a saved template.
func (s *Store) DeleteTemplate(ctx context.Context, templateID string) error {
	return s.st.Delete(ctx, store.TemplatePath(s.uid, templateID))
}
