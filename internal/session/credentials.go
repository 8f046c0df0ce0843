package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const credentialsFile = "creds.json"

// FileCredentialStore keeps each tenant's pairing credentials in its own
// directory under a common root.
type FileCredentialStore struct {
	root string
}

// NewFileCredentialStore creates the root directory if needed.
func NewFileCredentialStore(root string) (*FileCredentialStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential root %s: %w", root, err)
	}
	return &FileCredentialStore{root: root}, nil
}

func (s *FileCredentialStore) tenantDir(tenantID string) string {
	return filepath.Join(s.root, tenantID)
}

// Load returns (nil, nil) when the tenant has no stored credentials.
func (s *FileCredentialStore) Load(tenantID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.tenantDir(tenantID), credentialsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials for tenant %s: %w", tenantID, err)
	}
	return data, nil
}

func (s *FileCredentialStore) Save(tenantID string, creds []byte) error {
	dir := s.tenantDir(tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir for tenant %s: %w", tenantID, err)
	}

	// Temp file plus rename keeps a crash from leaving half-written creds.
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, creds, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials for tenant %s: %w", tenantID, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, credentialsFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to persist credentials for tenant %s: %w", tenantID, err)
	}
	return nil
}

// Delete removes the tenant's entire credential directory. Missing
// directories are not an error.
func (s *FileCredentialStore) Delete(tenantID string) error {
	if err := os.RemoveAll(s.tenantDir(tenantID)); err != nil {
		return fmt.Errorf("failed to delete credentials for tenant %s: %w", tenantID, err)
	}
	return nil
}
