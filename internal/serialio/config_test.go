package serialio

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", config.BaudRate)
	}
	if config.DataBits != 8 {
		t.Errorf("Expected DataBits 8, got %d", config.DataBits)
	}
	if config.StopBits != 1 {
		t.Errorf("Expected StopBits 1, got %d", config.StopBits)
	}
	if config.Parity != ParityNone {
		t.Errorf("Expected Parity None, got %v", config.Parity)
	}
	if config.ReadTimeoutTenths != 2 {
		t.Errorf("Expected ReadTimeoutTenths 2, got %d", config.ReadTimeoutTenths)
	}
}

func TestWithBaudRate(t *testing.T) {
	tests := []struct {
		rate    int
		wantErr bool
	}{
		{9600, false},
		{115200, false},
		{921600, false},
		{3000000, false},
		{123, true},
		{0, true},
		{-9600, true},
	}

	for _, tt := range tests {
		config := DefaultConfig()
		err := WithBaudRate(tt.rate)(&config)
		if (err != nil) != tt.wantErr {
			t.Errorf("WithBaudRate(%d) error = %v, wantErr %v", tt.rate, err, tt.wantErr)
		}
		if err == nil && config.BaudRate != tt.rate {
			t.Errorf("BaudRate = %d, want %d", config.BaudRate, tt.rate)
		}
	}
}

func TestWithReadTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"0ms (non-blocking)", 0, false},
		{"100ms (valid)", 100 * time.Millisecond, false},
		{"2500ms (valid)", 2500 * time.Millisecond, false},
		{"25500ms (max)", 25500 * time.Millisecond, false},
		{"150ms (not multiple of 100ms)", 150 * time.Millisecond, true},
		{"25600ms (exceeds max)", 25600 * time.Millisecond, true},
		{"-100ms (negative)", -100 * time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			err := WithReadTimeout(tt.timeout)(&config)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithReadTimeout(%v) error = %v, wantErr %v", tt.timeout, err, tt.wantErr)
			}
			if err == nil && config.ReadTimeoutTenths != int(tt.timeout/(100*time.Millisecond)) {
				t.Errorf("ReadTimeoutTenths = %d, want %d", config.ReadTimeoutTenths, int(tt.timeout/(100*time.Millisecond)))
			}
		})
	}
}

func TestDataAndStopBitOptions(t *testing.T) {
	config := DefaultConfig()

	if err := WithDataBits(7)(&config); err != nil {
		t.Errorf("WithDataBits(7) failed: %v", err)
	}
	if config.DataBits != 7 {
		t.Errorf("Expected DataBits 7, got %d", config.DataBits)
	}
	if err := WithDataBits(4)(&config); err != ErrInvalidConfig {
		t.Errorf("Expected ErrInvalidConfig for 4 data bits, got %v", err)
	}

	if err := WithStopBits(2)(&config); err != nil {
		t.Errorf("WithStopBits(2) failed: %v", err)
	}
	if err := WithStopBits(3)(&config); err != ErrInvalidConfig {
		t.Errorf("Expected ErrInvalidConfig for 3 stop bits, got %v", err)
	}
}
