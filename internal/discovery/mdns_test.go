package discovery

import "testing"

func TestNewAdvertiserValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Instance: "bridge-01", Port: 8080}, wantErr: false},
		{name: "missing instance", cfg: Config{Port: 8080}, wantErr: true},
		{name: "zero port", cfg: Config{Instance: "bridge-01"}, wantErr: true},
		{name: "negative port", cfg: Config{Instance: "bridge-01", Port: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdvertiser(tt.cfg)
			if tt.wantErr && err == nil {
				t.Error("Expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
