package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
)

type GCPSecretManager struct {
	projectID string
	api       gcpAPI
}

func NewGCPSecretManager(projectID string) *GCPSecretManager {
	return &GCPSecretManager{projectID: projectID, api: &secretManagerAPI{}}
}

func (g *GCPSecretManager) Name() string { return "gcp-secretmanager:" + g.projectID }

func (g *GCPSecretManager) Fetch(ctx context.Context) (map[string]string, error) {
	names, err := g.api.list(ctx, fmt.Sprintf("projects/%s", g.projectID))
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}

	values := make(map[string]string, len(names))
	for _, name := range names {
		data, err := g.api.access(ctx, name+"/versions/latest")
		if err != nil {
			return nil, fmt.Errorf("access secret %s: %w", name, err)
		}
		values[name[strings.LastIndex(name, "/")+1:]] = string(data)
	}
	return values, nil
}

// gcpAPI is the subset of Secret Manager used by Fetch.
type gcpAPI interface {
	list(ctx context.Context, parent string) ([]string, error)
	access(ctx context.Context, version string) ([]byte, error)
}

type secretManagerAPI struct {
	client *secretmanager.Client
}

func (s *secretManagerAPI) ensure(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create secretmanager client: %w", err)
	}
	s.client = client
	return nil
}

func (s *secretManagerAPI) list(ctx context.Context, parent string) ([]string, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	var names []string
	it := s.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: parent})
	for {
		secret, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, secret.Name)
	}
	return names, nil
}

func (s *secretManagerAPI) access(ctx context.Context, version string) ([]byte, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: version})
	if err != nil {
		return nil, err
	}
	return result.Payload.Data, nil
}
