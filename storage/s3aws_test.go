package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPresigner(t *testing.T) *ArtifactPresigner {
	t.Helper()
	client, err := NewClient(context.Background(), Config{
		Region:    "us-east-1",
		Bucket:    "runledger-artifacts",
		AccessKey: "test-key",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)
	return NewArtifactPresigner(client, "runledger-artifacts", 15*time.Minute)
}

func TestArtifactPresigner_PresignUpload(t *testing.T) {
	p := testPresigner(t)
	url, expiresAt, err := p.PresignUpload(context.Background(), "runs/run1/model.pt")
	require.NoError(t, err)
	require.Contains(t, url, "runledger-artifacts")
	require.True(t, strings.Contains(url, "model.pt"))
	require.True(t, expiresAt.After(time.Now()))
}

func TestArtifactPresigner_PresignDownload(t *testing.T) {
	p := testPresigner(t)
	url, expiresAt, err := p.PresignDownload(context.Background(), "runs/run1/model.pt")
	require.NoError(t, err)
	require.Contains(t, url, "runledger-artifacts")
	require.True(t, expiresAt.After(time.Now()))
}
