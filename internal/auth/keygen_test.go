package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey_Live(t *testing.T) {
	t.Parallel()

	key, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(key.Plaintext, "lk_live_") {
		t.Errorf("Key should start with lk_live_, got: %s", key.Plaintext)
	}
	if len(key.Prefix) != KeyPrefixLen {
		t.Errorf("Prefix should be %d chars, got: %d", KeyPrefixLen, len(key.Prefix))
	}
	if !strings.HasPrefix(key.Hash, "$argon2id$v=") {
		t.Errorf("Hash should be in PHC format, got: %s", key.Hash)
	}
	if !strings.Contains(key.Plaintext, key.Prefix) {
		t.Error("Plaintext should contain prefix")
	}
}

func TestGenerateAPIKey_Test(t *testing.T) {
	t.Parallel()

	key, err := GenerateAPIKey(EnvTest)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(key.Plaintext, "lk_test_") {
		t.Errorf("Key should start with lk_test_, got: %s", key.Plaintext)
	}
}

func TestGenerateAPIKey_DefaultsToLive(t *testing.T) {
	t.Parallel()

	for _, env := range []string{"invalid", "", "prod", "staging"} {
		key, err := GenerateAPIKey(env)
		if err != nil {
			t.Fatalf("GenerateAPIKey failed: %v", err)
		}
		if !strings.HasPrefix(key.Plaintext, "lk_live_") {
			t.Errorf("Expected lk_live_ prefix for env %q, got: %s", env, key.Plaintext)
		}
	}
}

func TestGenerateAPIKey_UniqueSecrets(t *testing.T) {
	t.Parallel()

	const numKeys = 100
	secrets := make(map[string]bool, numKeys)

	for i := 0; i < numKeys; i++ {
		key, err := GenerateAPIKey(EnvLive)
		if err != nil {
			t.Fatalf("GenerateAPIKey failed: %v", err)
		}

		parts := strings.Split(key.Plaintext, "_")
		if len(parts) != 4 {
			t.Fatalf("Expected 4 parts in key, got %d", len(parts))
		}
		secret := parts[3]

		if secrets[secret] {
			t.Errorf("Duplicate secret found at iteration %d", i)
		}
		secrets[secret] = true
	}
}

func TestParseAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		key        string
		wantEnv    string
		wantPrefix string
		wantErr    error
	}{
		{
			name:       "valid live key",
			key:        "lk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
			wantEnv:    "live",
			wantPrefix: "abc123",
		},
		{
			name:       "valid test key",
			key:        "lk_test_def456_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
			wantEnv:    "test",
			wantPrefix: "def456",
		},
		{
			name:    "wrong prefix sk_",
			key:     "sk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
			wantErr: ErrInvalidKeyFormat,
		},
		{
			name:    "wrong env prod",
			key:     "lk_prod_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
			wantErr: ErrInvalidKeyFormat,
		},
		{
			name:    "short prefix",
			key:     "lk_live_abc_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b",
			wantErr: ErrInvalidKeyFormat,
		},
		{
			name:    "short secret",
			key:     "lk_live_abc123_4f8d2e1b",
			wantErr: ErrInvalidKeyFormat,
		},
		{
			name:    "empty string",
			key:     "",
			wantErr: ErrInvalidKeyFormat,
		},
		{
			name:    "missing parts",
			key:     "lk_live_",
			wantErr: ErrInvalidKeyFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := ParseAPIKey(tt.key)

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("ParseAPIKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseAPIKey(%q) unexpected error: %v", tt.key, err)
			}
			if parsed.Env != tt.wantEnv {
				t.Errorf("Env = %s, want %s", parsed.Env, tt.wantEnv)
			}
			if parsed.Prefix != tt.wantPrefix {
				t.Errorf("Prefix = %s, want %s", parsed.Prefix, tt.wantPrefix)
			}
		})
	}
}

func TestValidateKeyFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid live key", "lk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", true},
		{"valid test key", "lk_test_def456_0123456789abcdef0123456789abcdef", true},
		{"not a key", "not-a-key", false},
		{"wrong prefix", "sk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", false},
		{"empty", "", false},
		{"uppercase hex", "lk_live_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ValidateKeyFormat(tt.key); got != tt.want {
				t.Errorf("ValidateKeyFormat(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
