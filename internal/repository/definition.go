package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// DefinitionRepository reads app, menu and API call definitions.
// The definitions are admin-managed; this service never writes them.
type DefinitionRepository interface {
	FindAppByCode(ctx context.Context, ussdCode string) (*model.App, error)
	FindAppByID(ctx context.Context, id string) (*model.App, error)
	ListApps(ctx context.Context) ([]model.App, error)
	FindMenu(ctx context.Context, appID, menuCode string) (*model.Menu, error)
	ListMenus(ctx context.Context, appID string) ([]model.Menu, error)
	FindApiConfig(ctx context.Context, appID, apiName string) (*model.ApiCallConfig, error)
	ListApiConfigs(ctx context.Context, appID string) ([]model.ApiCallConfig, error)
}

type definitionRepo struct {
	db *sqlx.DB
}

func NewDefinitionRepository(db *sqlx.DB) DefinitionRepository {
	return &definitionRepo{db: db}
}

func (r *definitionRepo) FindAppByCode(ctx context.Context, ussdCode string) (*model.App, error) {
	return getOne[model.App](ctx, r.db, `
		SELECT * FROM ussd_apps WHERE ussd_code = $1 AND is_active = TRUE
	`, ussdCode)
}

func (r *definitionRepo) FindAppByID(ctx context.Context, id string) (*model.App, error) {
	return getOne[model.App](ctx, r.db, `SELECT * FROM ussd_apps WHERE id = $1`, id)
}

func (r *definitionRepo) ListApps(ctx context.Context) ([]model.App, error) {
	var apps []model.App
	err := r.db.SelectContext(ctx, &apps, `SELECT * FROM ussd_apps ORDER BY ussd_code`)
	return apps, err
}

func (r *definitionRepo) FindMenu(ctx context.Context, appID, menuCode string) (*model.Menu, error) {
	return getOne[model.Menu](ctx, r.db, `
		SELECT * FROM ussd_menus WHERE app_id = $1 AND menu_code = $2
	`, appID, menuCode)
}

func (r *definitionRepo) ListMenus(ctx context.Context, appID string) ([]model.Menu, error) {
	var menus []model.Menu
	err := r.db.SelectContext(ctx, &menus, `
		SELECT * FROM ussd_menus WHERE app_id = $1 ORDER BY menu_code
	`, appID)
	return menus, err
}

func (r *definitionRepo) FindApiConfig(ctx context.Context, appID, apiName string) (*model.ApiCallConfig, error) {
	return getOne[model.ApiCallConfig](ctx, r.db, `
		SELECT * FROM api_configs WHERE app_id = $1 AND api_name = $2
	`, appID, apiName)
}

func (r *definitionRepo) ListApiConfigs(ctx context.Context, appID string) ([]model.ApiCallConfig, error) {
	var cfgs []model.ApiCallConfig
	err := r.db.SelectContext(ctx, &cfgs, `
		SELECT * FROM api_configs WHERE app_id = $1 ORDER BY api_name
	`, appID)
	return cfgs, err
}
