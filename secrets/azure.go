package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/nsa-yoda/ReplyXL/logger"
	"go.uber.org/zap"
)

type AzureKeyVault struct {
	vaultName string

	kvOnce   sync.Once
	kvErr    error
	KvClient keyVaultClient
}

func NewAzureKeyVault(vaultName string) *AzureKeyVault {
	return &AzureKeyVault{vaultName: vaultName}
}

func (a *AzureKeyVault) Name() string { return "azure-keyvault:" + a.vaultName }

func (a *AzureKeyVault) Fetch(ctx context.Context) (map[string]string, error) {
	if err := a.ensureKV(); err != nil {
		return nil, err
	}

	values := map[string]string{}
	pager := a.KvClient.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list secrets: %w", err)
		}

		for _, secret := range page.Value {
			if secret == nil || secret.ID == nil {
				continue
			}
			if secret.Attributes != nil && secret.Attributes.Enabled != nil && !*secret.Attributes.Enabled {
				continue
			}

			resp, err := a.KvClient.GetSecret(ctx, secret.ID.Name(), secret.ID.Version(), nil)
			if err != nil {
				logger.Error("Failed to get secret", zap.String("name", secret.ID.Name()), zap.Error(err))
				continue
			}
			if resp.Value != nil {
				values[secret.ID.Name()] = *resp.Value
			}
		}
	}

	return values, nil
}

func (a *AzureKeyVault) ensureKV() error {
	if a.KvClient != nil {
		return nil
	}

	a.kvOnce.Do(func() {
		url := fmt.Sprintf("https://%s.vault.azure.net/", a.vaultName)

		cred, err := newDefaultCred()
		if err != nil {
			a.kvErr = err
			return
		}
		a.KvClient, a.kvErr = newKVClient(url, cred)
	})
	return a.kvErr
}

// swapped in tests
var (
	newDefaultCred = func() (*azidentity.DefaultAzureCredential, error) {
		return azidentity.NewDefaultAzureCredential(nil)
	}
	newKVClient = func(url string, cred *azidentity.DefaultAzureCredential) (keyVaultClient, error) {
		return azsecrets.NewClient(url, cred, nil)
	}
)

type keyVaultClient interface {
	NewListSecretPropertiesPager(*azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
	GetSecret(context.Context, string, string, *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}
