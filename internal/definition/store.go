// Package definition loads app, menu and API call definitions from a YAML
// flow file and checks definitions for broken menu graphs.
package definition

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// appNamespace derives stable app ids from USSD codes so that sessions
// keep pointing at the same app across restarts.
var appNamespace = uuid.MustParse("6f1c7a52-4f7e-4d8e-9d55-1f0e2b8f6a10")

// Bundle is one app with everything it references.
type Bundle struct {
	App   model.App             `yaml:",inline"`
	Menus []model.Menu          `yaml:"menus"`
	APIs  []model.ApiCallConfig `yaml:"apis"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

type file struct {
	Apps []Bundle `yaml:"apps"`
}

// Store serves definitions from memory. It is safe for concurrent reads.
type Store struct {
	bundles []Bundle
	apps    map[string]*model.App
	byID    map[string]*model.App
	menus   map[string]*model.Menu
	apis    map[string]*model.ApiCallConfig
}

// LoadFile parses the YAML flow file at path.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a flow document. Unknown keys are rejected.
func Parse(data []byte) (*Store, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	return NewStore(doc.Apps)
}

// NewStore indexes bundles, assigning app ids where missing.
func NewStore(bundles []Bundle) (*Store, error) {
	s := &Store{
		apps:  make(map[string]*model.App),
		byID:  make(map[string]*model.App),
		menus: make(map[string]*model.Menu),
		apis:  make(map[string]*model.ApiCallConfig),
	}

	for i := range bundles {
		b := &bundles[i]
		if b.App.Code == "" {
			return nil, fmt.Errorf("app #%d has no code", i+1)
		}
		if _, dup := s.apps[b.App.Code]; dup {
			return nil, fmt.Errorf("duplicate app code %q", b.App.Code)
		}
		if b.App.ID == "" {
			b.App.ID = uuid.NewSHA1(appNamespace, []byte(b.App.Code)).String()
		}
		b.App.IsActive = b.Active == nil || *b.Active
		s.apps[b.App.Code] = &b.App
		s.byID[b.App.ID] = &b.App

		for j := range b.Menus {
			m := &b.Menus[j]
			m.AppID = b.App.ID
			key := scoped(b.App.ID, m.Code)
			if _, dup := s.menus[key]; dup {
				return nil, fmt.Errorf("app %s: duplicate menu %q", b.App.Code, m.Code)
			}
			s.menus[key] = m
		}
		for j := range b.APIs {
			a := &b.APIs[j]
			a.AppID = b.App.ID
			key := scoped(b.App.ID, a.Name)
			if _, dup := s.apis[key]; dup {
				return nil, fmt.Errorf("app %s: duplicate api %q", b.App.Code, a.Name)
			}
			s.apis[key] = a
		}
	}
	s.bundles = bundles
	return s, nil
}

func scoped(appID, name string) string {
	return appID + "/" + name
}

// Bundles returns every app in file order.
func (s *Store) Bundles() []Bundle {
	return s.bundles
}

func (s *Store) FindAppByCode(_ context.Context, code string) (*model.App, error) {
	app, ok := s.apps[code]
	if !ok || !app.IsActive {
		return nil, nil
	}
	return app, nil
}

func (s *Store) FindAppByID(_ context.Context, id string) (*model.App, error) {
	return s.byID[id], nil
}

func (s *Store) FindMenu(_ context.Context, appID, code string) (*model.Menu, error) {
	return s.menus[scoped(appID, code)], nil
}

func (s *Store) FindApiConfig(_ context.Context, appID, name string) (*model.ApiCallConfig, error) {
	return s.apis[scoped(appID, name)], nil
}
