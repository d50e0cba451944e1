package filestore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ark-network/pls/pkg/identity"
)

const filename = "identity.json"

type identityData struct {
	EncryptedPrvkey string `json:"encrypted_private_key"`
	PubKey          string `json:"pubkey"`
}

func (d identityData) isEmpty() bool {
	return d == identityData{}
}

func (d identityData) decode() (*identity.Data, error) {
	encryptedPrvkey, err := hex.DecodeString(d.EncryptedPrvkey)
	if err != nil {
		return nil, fmt.Errorf("invalid encrypted private key: %s", err)
	}
	return &identity.Data{
		EncryptedPrvkey: encryptedPrvkey,
		PubKey:          d.PubKey,
	}, nil
}

type fileStore struct {
	filePath string
	lock     sync.Mutex
}

// NewIdentityStore returns a Store persisting to a JSON state file under
// baseDir.
func NewIdentityStore(baseDir string) (identity.Store, error) {
	datadir := cleanAndExpandPath(baseDir)
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return nil, fmt.Errorf("failed to initialize datadir: %s", err)
	}
	store := &fileStore{filePath: filepath.Join(datadir, filename)}

	if _, err := store.open(); err != nil {
		return nil, fmt.Errorf("failed to open file store: %s", err)
	}
	return store, nil
}

func (s *fileStore) AddIdentity(_ context.Context, data identity.Data) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.write(identityData{
		EncryptedPrvkey: hex.EncodeToString(data.EncryptedPrvkey),
		PubKey:          data.PubKey,
	}); err != nil {
		return fmt.Errorf("failed to write to file store: %s", err)
	}
	return nil
}

func (s *fileStore) GetIdentity(_ context.Context) (*identity.Data, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := s.open()
	if err != nil {
		return nil, err
	}
	if data.isEmpty() {
		return nil, nil
	}
	return data.decode()
}

func (s *fileStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.write(identityData{})
}

func (s *fileStore) open() (identityData, error) {
	file, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return identityData{}, fmt.Errorf("failed to open file store: %s", err)
		}
		if err := s.write(identityData{}); err != nil {
			return identityData{}, fmt.Errorf("failed to initialize file store: %s", err)
		}
		return identityData{}, nil
	}

	data := identityData{}
	if err := json.Unmarshal(file, &data); err != nil {
		return identityData{}, fmt.Errorf("failed to read file store: %s", err)
	}
	return data, nil
}

func (s *fileStore) write(data identityData) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, buf, 0600)
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0700)
	}
	return nil
}
