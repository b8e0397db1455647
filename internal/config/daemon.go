package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/canbridge/internal/canbus"
)

// Bus kinds the daemon knows how to open.
const (
	BusVirtual   = "virtual"
	BusSLCAN     = "slcan"
	BusSocketCAN = "socketcan"
	BusUDP       = "udp"
)

// DaemonConfig is the root configuration for the bridge daemon. All
// fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for the rest.
type DaemonConfig struct {
	// Bus selection
	Bus        *string `json:"bus,omitempty"`         // virtual, slcan, socketcan or udp
	Device     *string `json:"device,omitempty"`      // serial device or CAN interface name
	Bitrate    *int    `json:"bitrate,omitempty"`     // bus bitrate for slcan adapters
	UDPGroup   *string `json:"udp_group,omitempty"`   // multicast group for the udp bus
	ReceiveOwn *bool   `json:"receive_own,omitempty"` // loop sent frames back to the receive path

	// Decoding
	MappingPath *string `json:"mapping_path,omitempty"` // JSON mapping table
	DBCPath     *string `json:"dbc_path,omitempty"`     // optional DBC file merged on top

	// Storage
	JournalPath    *string `json:"journal_path,omitempty"`
	BufferCapacity *int    `json:"buffer_capacity,omitempty"` // frame ring size

	// HTTP and logging
	Listen      *string `json:"listen,omitempty"`
	LogInterval *string `json:"log_interval,omitempty"` // duration string like "60s"

	// Replay
	ReplayPath  *string  `json:"replay_path,omitempty"` // capture file fed onto the bus at startup
	ReplaySpeed *float64 `json:"replay_speed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDaemonConfig returns a DaemonConfig with all fields set to nil,
// meaning every Get* method answers with its default.
func EmptyDaemonConfig() *DaemonConfig {
	return &DaemonConfig{}
}

// LoadDaemonConfig loads a DaemonConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max
// file size. Fields omitted from the JSON keep their defaults, so
// partial configs are safe.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDaemonConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *DaemonConfig) Validate() error {
	if c.Bus != nil {
		switch *c.Bus {
		case BusVirtual, BusSLCAN, BusSocketCAN, BusUDP:
		default:
			return fmt.Errorf("unknown bus kind %q", *c.Bus)
		}
	}
	if c.Bitrate != nil && *c.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", *c.Bitrate)
	}
	if c.BufferCapacity != nil && *c.BufferCapacity <= 0 {
		return fmt.Errorf("buffer_capacity must be positive, got %d", *c.BufferCapacity)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		if _, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
	}
	if c.ReplaySpeed != nil && *c.ReplaySpeed < 0 {
		return fmt.Errorf("replay_speed must not be negative, got %f", *c.ReplaySpeed)
	}
	if c.UDPGroup != nil && *c.UDPGroup == "" {
		return fmt.Errorf("udp_group must not be empty when set")
	}
	return nil
}

// GetBus returns the bus kind or the default.
func (c *DaemonConfig) GetBus() string {
	if c.Bus == nil || *c.Bus == "" {
		return BusVirtual // default: no hardware required
	}
	return *c.Bus
}

// GetDevice returns the device name or the default.
func (c *DaemonConfig) GetDevice() string {
	if c.Device == nil || *c.Device == "" {
		return "can0"
	}
	return *c.Device
}

// GetBitrate returns the slcan bitrate or the default.
func (c *DaemonConfig) GetBitrate() int {
	if c.Bitrate == nil {
		return 500000
	}
	return *c.Bitrate
}

// GetUDPGroup returns the multicast group or the default.
func (c *DaemonConfig) GetUDPGroup() string {
	if c.UDPGroup == nil || *c.UDPGroup == "" {
		return canbus.DefaultUDPGroup
	}
	return *c.UDPGroup
}

// GetReceiveOwn returns whether sent frames loop back.
func (c *DaemonConfig) GetReceiveOwn() bool {
	if c.ReceiveOwn == nil {
		return false
	}
	return *c.ReceiveOwn
}

// GetMappingPath returns the mapping table path, or "" when none is
// configured.
func (c *DaemonConfig) GetMappingPath() string {
	if c.MappingPath == nil {
		return ""
	}
	return *c.MappingPath
}

// GetDBCPath returns the DBC path, or "" when none is configured.
func (c *DaemonConfig) GetDBCPath() string {
	if c.DBCPath == nil {
		return ""
	}
	return *c.DBCPath
}

// GetJournalPath returns the sqlite path or the default.
func (c *DaemonConfig) GetJournalPath() string {
	if c.JournalPath == nil || *c.JournalPath == "" {
		return "canbridge.db"
	}
	return *c.JournalPath
}

// GetBufferCapacity returns the frame ring size or the default.
func (c *DaemonConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil {
		return 1024
	}
	return *c.BufferCapacity
}

// GetListen returns the HTTP listen address or the default.
func (c *DaemonConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *DaemonConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetReplayPath returns the capture path, or "" when replay is off.
func (c *DaemonConfig) GetReplayPath() string {
	if c.ReplayPath == nil {
		return ""
	}
	return *c.ReplayPath
}

// GetReplaySpeed returns the replay speed multiplier or the default.
// Zero means replay as fast as possible.
func (c *DaemonConfig) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 1.0
	}
	return *c.ReplaySpeed
}
