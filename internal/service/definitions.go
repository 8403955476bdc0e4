package service

import (
	"context"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// DefinitionStore looks up flow definitions. Find methods return nil, nil
// when nothing matches. Both the Postgres repository and the YAML flow
// file store satisfy it.
type DefinitionStore interface {
	FindAppByCode(ctx context.Context, ussdCode string) (*model.App, error)
	FindAppByID(ctx context.Context, id string) (*model.App, error)
	FindMenu(ctx context.Context, appID, menuCode string) (*model.Menu, error)
	FindApiConfig(ctx context.Context, appID, apiName string) (*model.ApiCallConfig, error)
}
