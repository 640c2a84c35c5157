package crm

import (
	"context"
	"fmt"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"

	"casebridge/internal/config"
)

// MSALAcquirer runs the client-credentials flow against the tenant authority.
type MSALAcquirer struct {
	client confidential.Client
	scopes []string
}

func NewMSALAcquirer(cfg config.CRMConfig) (*MSALAcquirer, error) {
	cred, err := confidential.NewCredFromSecret(cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create client credential: %w", err)
	}

	client, err := confidential.New(cfg.AuthorityURL(), cfg.ClientID, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to create confidential client: %w", err)
	}

	return &MSALAcquirer{
		client: client,
		scopes: []string{cfg.Scope()},
	}, nil
}

func (a *MSALAcquirer) AcquireToken(ctx context.Context) (Token, error) {
	result, err := a.client.AcquireTokenByCredential(ctx, a.scopes)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
	}, nil
}
