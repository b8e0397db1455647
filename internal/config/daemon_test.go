package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyDaemonConfigDefaults(t *testing.T) {
	cfg := EmptyDaemonConfig()

	if cfg.GetBus() != BusVirtual {
		t.Errorf("GetBus() = %q, want %q", cfg.GetBus(), BusVirtual)
	}
	if cfg.GetDevice() != "can0" {
		t.Errorf("GetDevice() = %q, want can0", cfg.GetDevice())
	}
	if cfg.GetBitrate() != 500000 {
		t.Errorf("GetBitrate() = %d, want 500000", cfg.GetBitrate())
	}
	if cfg.GetUDPGroup() != "239.74.163.2:43113" {
		t.Errorf("GetUDPGroup() = %q, want the default group", cfg.GetUDPGroup())
	}
	if cfg.GetReceiveOwn() {
		t.Error("GetReceiveOwn() = true, want false")
	}
	if cfg.GetMappingPath() != "" || cfg.GetDBCPath() != "" {
		t.Error("expected no mapping or dbc path by default")
	}
	if cfg.GetJournalPath() != "canbridge.db" {
		t.Errorf("GetJournalPath() = %q, want canbridge.db", cfg.GetJournalPath())
	}
	if cfg.GetBufferCapacity() != 1024 {
		t.Errorf("GetBufferCapacity() = %d, want 1024", cfg.GetBufferCapacity())
	}
	if cfg.GetListen() != ":8080" {
		t.Errorf("GetListen() = %q, want :8080", cfg.GetListen())
	}
	if cfg.GetLogInterval() != 60*time.Second {
		t.Errorf("GetLogInterval() = %v, want 60s", cfg.GetLogInterval())
	}
	if cfg.GetReplayPath() != "" {
		t.Errorf("GetReplayPath() = %q, want empty", cfg.GetReplayPath())
	}
	if cfg.GetReplaySpeed() != 1.0 {
		t.Errorf("GetReplaySpeed() = %f, want 1.0", cfg.GetReplaySpeed())
	}
}

func TestLoadDaemonConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "daemon.json")
	content := `{
		"bus": "slcan",
		"device": "/dev/ttyACM0",
		"bitrate": 250000,
		"log_interval": "5s",
		"buffer_capacity": 64
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("LoadDaemonConfig failed: %v", err)
	}
	if cfg.GetBus() != BusSLCAN {
		t.Errorf("GetBus() = %q, want slcan", cfg.GetBus())
	}
	if cfg.GetDevice() != "/dev/ttyACM0" {
		t.Errorf("GetDevice() = %q, want /dev/ttyACM0", cfg.GetDevice())
	}
	if cfg.GetBitrate() != 250000 {
		t.Errorf("GetBitrate() = %d, want 250000", cfg.GetBitrate())
	}
	if cfg.GetLogInterval() != 5*time.Second {
		t.Errorf("GetLogInterval() = %v, want 5s", cfg.GetLogInterval())
	}
	if cfg.GetBufferCapacity() != 64 {
		t.Errorf("GetBufferCapacity() = %d, want 64", cfg.GetBufferCapacity())
	}
	// Fields the file omits keep their defaults.
	if cfg.GetListen() != ":8080" {
		t.Errorf("GetListen() = %q, want :8080 default", cfg.GetListen())
	}
	if cfg.GetJournalPath() != "canbridge.db" {
		t.Errorf("GetJournalPath() = %q, want default", cfg.GetJournalPath())
	}
}

func TestLoadDaemonConfigRejectsBadFiles(t *testing.T) {
	tmpDir := t.TempDir()

	// Wrong extension
	badExt := filepath.Join(tmpDir, "daemon.yaml")
	if err := os.WriteFile(badExt, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDaemonConfig(badExt); err == nil {
		t.Error("expected error for non-json extension")
	}

	// Missing file
	if _, err := LoadDaemonConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	// Invalid JSON
	badJSON := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(badJSON, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDaemonConfig(badJSON); err == nil {
		t.Error("expected error for invalid JSON")
	}

	// Validation failure
	badBus := filepath.Join(tmpDir, "badbus.json")
	if err := os.WriteFile(badBus, []byte(`{"bus": "carrier-pigeon"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDaemonConfig(badBus); err == nil {
		t.Error("expected error for unknown bus kind")
	}
}

func TestDaemonConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     DaemonConfig
		wantErr bool
	}{
		{"empty", DaemonConfig{}, false},
		{"valid bus", DaemonConfig{Bus: ptrString(BusUDP)}, false},
		{"unknown bus", DaemonConfig{Bus: ptrString("pigeon")}, true},
		{"zero bitrate", DaemonConfig{Bitrate: ptrInt(0)}, true},
		{"negative capacity", DaemonConfig{BufferCapacity: ptrInt(-1)}, true},
		{"bad interval", DaemonConfig{LogInterval: ptrString("soon")}, true},
		{"good interval", DaemonConfig{LogInterval: ptrString("250ms")}, false},
		{"zero replay speed", DaemonConfig{ReplaySpeed: ptrFloat64(0)}, false},
		{"negative replay speed", DaemonConfig{ReplaySpeed: ptrFloat64(-2)}, true},
		{"empty group", DaemonConfig{UDPGroup: ptrString("")}, true},
		{"receive own", DaemonConfig{ReceiveOwn: ptrBool(true)}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestDaemonConfigParseErrorFallsBack(t *testing.T) {
	cfg := DaemonConfig{LogInterval: ptrString("garbage")}
	// Validate would reject this, but the getter must still be safe.
	if cfg.GetLogInterval() != 60*time.Second {
		t.Errorf("GetLogInterval() = %v, want 60s fallback", cfg.GetLogInterval())
	}
}
