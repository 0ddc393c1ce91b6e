package store

import (
	"time"

	"github.com/google/uuid"
)

// Template is a reusable named message body.
type Template struct {
	ID      string
	Name    string
	Content string
}

// TemplateStore handles message template operations.
type TemplateStore struct {
	store *Store
}

// NewTemplateStore creates a new TemplateStore.
func NewTemplateStore(s *Store) *TemplateStore {
	return &TemplateStore{store: s}
}

// Create inserts a new template. Names are unique.
func (s *TemplateStore) Create(t *Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.store.Exec(`
		INSERT INTO wa_templates (id, name, content, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.Content, time.Now().Unix(),
	)
	return err
}

// List returns all templates ordered by name.
func (s *TemplateStore) List() ([]*Template, error) {
	rows, err := s.store.Query(`SELECT id, name, content FROM wa_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Content); err != nil {
			return nil, err
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// Get retrieves a template by id.
func (s *TemplateStore) Get(id string) (*Template, error) {
	var t Template
	err := s.store.QueryRow(`SELECT id, name, content FROM wa_templates WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Content)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByName retrieves a template by its unique name.
func (s *TemplateStore) GetByName(name string) (*Template, error) {
	var t Template
	err := s.store.QueryRow(`SELECT id, name, content FROM wa_templates WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &t.Content)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Update rewrites a template's name and content.
func (s *TemplateStore) Update(t *Template) error {
	_, err := s.store.Exec(`UPDATE wa_templates SET name = ?, content = ? WHERE id = ?`, t.Name, t.Content, t.ID)
	return err
}

// Delete removes a template.
func (s *TemplateStore) Delete(id string) error {
	_, err := s.store.Exec(`DELETE FROM wa_templates WHERE id = ?`, id)
	return err
}
