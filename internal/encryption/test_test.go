package encryption

import (
	"bytes"
	"testing"

	"vj-go/internal/config"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	input := []byte(`{"refresh_token":"r1"}`)
	e := NewTestEncryptor()

	var sealed bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(input), &sealed); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.HasPrefix(sealed.Bytes(), testHeader) {
		t.Error("sealed output does not start with header")
	}

	dec, err := e.Unlock("anything")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var plain bytes.Buffer
	if err := dec.Decrypt(&sealed, &plain); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(plain.Bytes(), input) {
		t.Errorf("got %q, want %q", plain.Bytes(), input)
	}
}

func TestTestEncryptor_Passphrase(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	if err := e.Setup("secret"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := e.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase should fail")
	}
	if _, err := e.Unlock("secret"); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}
}

func TestTestDecryptionContext_BadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"wrong header", []byte("NOT_VALID_HEADER_data")},
		{"truncated", []byte("VJ")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &TestDecryptionContext{}
			if err := dec.Decrypt(bytes.NewReader(tt.input), &bytes.Buffer{}); err == nil {
				t.Error("Decrypt() should return error")
			}
		})
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     string
		want    string
		wantErr bool
	}{
		{"", "*encryption.AgeEncryptor", false},
		{"age", "*encryption.AgeEncryptor", false},
		{"test", "*encryption.TestEncryptor", false},
		{"rot13", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch enc.(type) {
			case *AgeEncryptor:
				if tt.want != "*encryption.AgeEncryptor" {
					t.Errorf("got AgeEncryptor, want %s", tt.want)
				}
			case *TestEncryptor:
				if tt.want != "*encryption.TestEncryptor" {
					t.Errorf("got TestEncryptor, want %s", tt.want)
				}
			}
		})
	}
}
