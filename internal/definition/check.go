package definition

import (
	"context"
	"fmt"
	"sort"

	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
)

// Problem is one defect found in an app's definitions.
type Problem struct {
	App     string `json:"app"`
	Menu    string `json:"menu,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Menu == "" {
		return fmt.Sprintf("%s: %s", p.App, p.Message)
	}
	return fmt.Sprintf("%s/%s: %s", p.App, p.Menu, p.Message)
}

// Check walks one app's menu graph. Dynamic option lists are only known
// at runtime, so an options menu without static options must name a
// next_menu for them.
func Check(b Bundle) []Problem {
	var problems []Problem
	report := func(menu, format string, args ...any) {
		problems = append(problems, Problem{App: b.App.Code, Menu: menu, Message: fmt.Sprintf(format, args...)})
	}

	menus := make(map[string]*model.Menu, len(b.Menus))
	for i := range b.Menus {
		menus[b.Menus[i].Code] = &b.Menus[i]
	}
	apis := make(map[string]bool, len(b.APIs))
	for _, a := range b.APIs {
		apis[a.Name] = true
		if a.Endpoint == "" {
			report("", "api %s has no endpoint", a.Name)
		}
	}

	if b.App.EntryMenu == "" {
		report("", "no entry menu")
	} else if _, ok := menus[b.App.EntryMenu]; !ok {
		report("", "entry menu %q does not exist", b.App.EntryMenu)
	}

	resolves := func(code string) bool {
		_, ok := menus[code]
		return ok
	}

	for _, m := range b.Menus {
		if !m.Type.Valid() {
			report(m.Code, "unknown menu type %q", m.Type)
			continue
		}
		for _, ref := range m.APICalls {
			if !apis[ref.Name] {
				report(m.Code, "api call %q is not configured", ref.Name)
			}
		}
		if m.Type == model.MenuTypeFinal {
			continue
		}

		if next := m.Next(); next != "" && !resolves(next) {
			report(m.Code, "next_menu %q does not exist", next)
		}

		switch m.Type {
		case model.MenuTypeInput:
			if m.Next() == "" {
				report(m.Code, "input menu has no next_menu")
			}
		case model.MenuTypeOptions:
			if len(m.Options) == 0 && m.Next() == "" {
				report(m.Code, "options menu has neither options nor next_menu")
			}
			seen := make(map[string]bool, len(m.Options))
			for _, opt := range m.Options {
				if seen[opt.ID] {
					report(m.Code, "duplicate option id %q", opt.ID)
				}
				seen[opt.ID] = true
				switch {
				case opt.Next != "" && !resolves(opt.Next):
					report(m.Code, "option %s points at missing menu %q", opt.ID, opt.Next)
				case opt.Next == "" && m.Next() == "":
					report(m.Code, "option %s has no next menu", opt.ID)
				}
			}
		}
	}
	return problems
}

// CheckAll checks every bundle, ordered by app code.
func CheckAll(bundles []Bundle) []Problem {
	sorted := append([]Bundle(nil), bundles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].App.Code < sorted[j].App.Code })

	var problems []Problem
	for _, b := range sorted {
		problems = append(problems, Check(b)...)
	}
	return problems
}

// LoadBundles reads every app with its menus and API configs from the database.
func LoadBundles(ctx context.Context, repo repository.DefinitionRepository) ([]Bundle, error) {
	apps, err := repo.ListApps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}

	bundles := make([]Bundle, 0, len(apps))
	for _, app := range apps {
		menus, err := repo.ListMenus(ctx, app.ID)
		if err != nil {
			return nil, fmt.Errorf("list menus for %s: %w", app.Code, err)
		}
		apis, err := repo.ListApiConfigs(ctx, app.ID)
		if err != nil {
			return nil, fmt.Errorf("list api configs for %s: %w", app.Code, err)
		}
		bundles = append(bundles, Bundle{App: app, Menus: menus, APIs: apis})
	}
	return bundles, nil
}
