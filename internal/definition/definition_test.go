package definition

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

const chamaFlow = `
apps:
  - code: "*384#"
    name: Chama
    entry_menu: main
    menus:
      - code: main
        type: options
        text: Welcome to Chama
        options:
          - {id: 1, label: Check balance, next: enter_pin}
          - {id: 2, label: Help, next: help}
      - code: enter_pin
        type: input
        text: Enter your PIN
        sensitive: true
        validation:
          numeric: true
          minLength: 4
          maxLength: {value: 4, message: PIN is 4 digits}
        next_menu: balance
      - code: balance
        type: final
        text: "Balance {{currency:balance}}"
        api_calls:
          - get_balance
          - name: get_balance
            config: {timeout: 2000}
      - code: help
        type: final
        text: Call 100
    apis:
      - name: get_balance
        endpoint: https://bank.example/balance
        method: POST
        auth: {type: bearer, token: "{{app_token}}"}
        body: {pin: "{{enter_pin_input}}"}
        response_mapping: {balance: $.data.balance}
        failure_attempt_type: wrong_pin
  - code: "*385#"
    name: Dormant
    entry_menu: main
    active: false
    menus:
      - {code: main, type: final, text: Closed}
`

func TestParse(t *testing.T) {
	store, err := Parse([]byte(chamaFlow))
	require.NoError(t, err)
	ctx := context.Background()

	app, err := store.FindAppByCode(ctx, "*384#")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.True(t, app.IsActive)
	assert.Equal(t, "main", app.EntryMenu)
	assert.NotEmpty(t, app.ID)

	again, err := Parse([]byte(chamaFlow))
	require.NoError(t, err)
	assert.Equal(t, app.ID, again.Bundles()[0].App.ID)

	byID, _ := store.FindAppByID(ctx, app.ID)
	assert.Same(t, app, byID)

	t.Run("menus", func(t *testing.T) {
		main, _ := store.FindMenu(ctx, app.ID, "main")
		require.NotNil(t, main)
		assert.Equal(t, model.Options{
			{ID: "1", Label: "Check balance", Next: "enter_pin"},
			{ID: "2", Label: "Help", Next: "help"},
		}, main.Options)

		pin, _ := store.FindMenu(ctx, app.ID, "enter_pin")
		require.NotNil(t, pin)
		assert.True(t, pin.Sensitive)
		require.Len(t, pin.ValidationRules, 3)
		assert.Equal(t, "numeric", pin.ValidationRules[0].Name)
		assert.Equal(t, "maxLength", pin.ValidationRules[2].Name)
		assert.Equal(t, "PIN is 4 digits", pin.ValidationRules[2].Message)
		assert.Equal(t, "balance", pin.Next())

		balance, _ := store.FindMenu(ctx, app.ID, "balance")
		require.Len(t, balance.APICalls, 2)
		assert.Nil(t, balance.APICalls[0].Override)
		require.NotNil(t, balance.APICalls[1].Override)
		assert.Equal(t, 2000, *balance.APICalls[1].Override.TimeoutMs)
	})

	t.Run("api configs", func(t *testing.T) {
		cfg, _ := store.FindApiConfig(ctx, app.ID, "get_balance")
		require.NotNil(t, cfg)
		assert.Equal(t, model.AuthTypeBearer, cfg.Auth.Type)
		assert.Equal(t, "{{enter_pin_input}}", cfg.BodyTemplate["pin"])
		assert.Equal(t, "$.data.balance", cfg.ResponseMapping["balance"])
		assert.Equal(t, "wrong_pin", *cfg.FailureAttemptType)

		missing, _ := store.FindApiConfig(ctx, app.ID, "nope")
		assert.Nil(t, missing)
	})

	t.Run("inactive apps are hidden by code", func(t *testing.T) {
		dormant, err := store.FindAppByCode(ctx, "*385#")
		require.NoError(t, err)
		assert.Nil(t, dormant)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "apps:\n  - code: a\n    entry: main\n", "field entry not found"},
		{"missing code", "apps:\n  - name: x\n", "has no code"},
		{"duplicate app", "apps:\n  - code: a\n  - code: a\n", "duplicate app code"},
		{"duplicate menu", "apps:\n  - code: a\n    menus:\n      - {code: m, type: final, text: x}\n      - {code: m, type: final, text: y}\n", "duplicate menu"},
		{"option without label", "apps:\n  - code: a\n    menus:\n      - code: m\n        type: options\n        text: x\n        options: [{id: 1}]\n", "requires id and label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheck(t *testing.T) {
	t.Run("valid flow", func(t *testing.T) {
		store, err := Parse([]byte(chamaFlow))
		require.NoError(t, err)
		assert.Empty(t, CheckAll(store.Bundles()))
	})

	t.Run("broken flow", func(t *testing.T) {
		b := Bundle{
			App: model.App{Code: "*1#", EntryMenu: "start"},
			Menus: []model.Menu{
				{Code: "main", Type: model.MenuTypeOptions, TextTemplate: "x", Options: model.Options{
					{ID: "1", Label: "A", Next: "ghost"},
					{ID: "1", Label: "B", Next: "pin"},
					{ID: "2", Label: "C"},
				}},
				{Code: "pin", Type: model.MenuTypeInput, TextTemplate: "PIN"},
				{Code: "list", Type: model.MenuTypeOptions, TextTemplate: "Pick"},
				{Code: "odd", Type: "carousel"},
				{Code: "done", Type: model.MenuTypeFinal, APICalls: model.ApiCallRefs{{Name: "unknown"}}},
			},
		}

		var got []string
		for _, p := range Check(b) {
			got = append(got, p.String())
		}
		assert.Equal(t, []string{
			`*1#: entry menu "start" does not exist`,
			`*1#/main: option 1 points at missing menu "ghost"`,
			`*1#/main: duplicate option id "1"`,
			`*1#/main: option 2 has no next menu`,
			`*1#/pin: input menu has no next_menu`,
			`*1#/list: options menu has neither options nor next_menu`,
			`*1#/odd: unknown menu type "carousel"`,
			`*1#/done: api call "unknown" is not configured`,
		}, got)
	})

	t.Run("final menus may dangle", func(t *testing.T) {
		next := "nowhere"
		b := Bundle{
			App:   model.App{Code: "*2#", EntryMenu: "end"},
			Menus: []model.Menu{{Code: "end", Type: model.MenuTypeFinal, NextMenu: &next}},
		}
		assert.Empty(t, Check(b))
	})
}

type mockDefinitionRepo struct {
	mock.Mock
}

func (m *mockDefinitionRepo) FindAppByCode(ctx context.Context, code string) (*model.App, error) {
	args := m.Called(ctx, code)
	app, _ := args.Get(0).(*model.App)
	return app, args.Error(1)
}

func (m *mockDefinitionRepo) FindAppByID(ctx context.Context, id string) (*model.App, error) {
	args := m.Called(ctx, id)
	app, _ := args.Get(0).(*model.App)
	return app, args.Error(1)
}

func (m *mockDefinitionRepo) ListApps(ctx context.Context) ([]model.App, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.App), args.Error(1)
}

func (m *mockDefinitionRepo) FindMenu(ctx context.Context, appID, code string) (*model.Menu, error) {
	args := m.Called(ctx, appID, code)
	menu, _ := args.Get(0).(*model.Menu)
	return menu, args.Error(1)
}

func (m *mockDefinitionRepo) ListMenus(ctx context.Context, appID string) ([]model.Menu, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).([]model.Menu), args.Error(1)
}

func (m *mockDefinitionRepo) FindApiConfig(ctx context.Context, appID, name string) (*model.ApiCallConfig, error) {
	args := m.Called(ctx, appID, name)
	cfg, _ := args.Get(0).(*model.ApiCallConfig)
	return cfg, args.Error(1)
}

func (m *mockDefinitionRepo) ListApiConfigs(ctx context.Context, appID string) ([]model.ApiCallConfig, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).([]model.ApiCallConfig), args.Error(1)
}

func TestLoadBundles(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo := new(mockDefinitionRepo)
		repo.On("ListApps", ctx).Return([]model.App{{ID: "a1", Code: "*1#", EntryMenu: "main"}}, nil)
		repo.On("ListMenus", ctx, "a1").Return([]model.Menu{{Code: "main", Type: model.MenuTypeFinal}}, nil)
		repo.On("ListApiConfigs", ctx, "a1").Return([]model.ApiCallConfig{}, nil)

		bundles, err := LoadBundles(ctx, repo)
		require.NoError(t, err)
		require.Len(t, bundles, 1)
		assert.Equal(t, "main", bundles[0].Menus[0].Code)
		assert.Empty(t, CheckAll(bundles))
		repo.AssertExpectations(t)
	})

	t.Run("menu query fails", func(t *testing.T) {
		repo := new(mockDefinitionRepo)
		repo.On("ListApps", ctx).Return([]model.App{{ID: "a1", Code: "*1#"}}, nil)
		repo.On("ListMenus", ctx, "a1").Return([]model.Menu(nil), errors.New("db down"))

		_, err := LoadBundles(ctx, repo)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "list menus for *1#"))
	})
}
