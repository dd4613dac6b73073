package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// CaptureProfile describes one saved capture setup: which device to
// open, the format to negotiate and where frames go.
type CaptureProfile struct {
	ID      string `toml:"id" json:"id"`
	Name    string `toml:"name" json:"name"`
	Device  string `toml:"device" json:"device"`
	Enabled bool   `toml:"enabled" json:"enabled"`

	// Format negotiation
	Width   uint32   `toml:"width,omitempty" json:"width,omitempty"`
	Height  uint32   `toml:"height,omitempty" json:"height,omitempty"`
	Formats []string `toml:"formats,omitempty" json:"formats,omitempty"` // fourcc names, in preference order

	// Buffer pool
	Buffers uint32 `toml:"buffers,omitempty" json:"buffers,omitempty"`

	// Frame output
	OutputDir    string `toml:"output_dir,omitempty" json:"output_dir,omitempty"`
	SaveInterval string `toml:"save_interval,omitempty" json:"save_interval,omitempty"` // Go duration, empty disables saving
	RingSize     int    `toml:"ring_size,omitempty" json:"ring_size,omitempty"`

	CreatedAt time.Time `toml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `toml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// CaptureConfig is the on-disk collection of capture profiles.
type CaptureConfig struct {
	Version  int                       `toml:"version" json:"version"`
	Profiles map[string]CaptureProfile `toml:"profiles" json:"profiles"`
}

// ProfileManager manages capture profile persistence.
type ProfileManager struct {
	configPath string
	config     *CaptureConfig
}

// NewProfileManager creates a new profile manager.
func NewProfileManager(configPath string) *ProfileManager {
	if configPath == "" {
		configPath = "profiles.toml"
	}
	return &ProfileManager{
		configPath: configPath,
		config: &CaptureConfig{
			Version:  1,
			Profiles: make(map[string]CaptureProfile),
		},
	}
}

// Load loads the profile configuration from file. A missing file is not
// an error; the manager starts empty.
func (pm *ProfileManager) Load() error {
	if _, err := os.Stat(pm.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(pm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read capture config: %w", err)
	}
	if err := toml.Unmarshal(data, pm.config); err != nil {
		return fmt.Errorf("failed to parse capture config: %w", err)
	}

	if pm.config.Profiles == nil {
		pm.config.Profiles = make(map[string]CaptureProfile)
	}
	if pm.config.Version == 0 {
		pm.config.Version = 1
	}
	return nil
}

// Save saves the profile configuration to file.
func (pm *ProfileManager) Save() error {
	dir := filepath.Dir(pm.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(pm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal capture config: %w", err)
	}
	if err := os.WriteFile(pm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture config: %w", err)
	}
	return nil
}

// AddProfile adds a new capture profile and persists the collection.
func (pm *ProfileManager) AddProfile(profile CaptureProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile ID cannot be empty")
	}
	if profile.Device == "" {
		return fmt.Errorf("device path cannot be empty")
	}
	if profile.Name == "" {
		profile.Name = profile.ID
	}

	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	pm.config.Profiles[profile.ID] = profile
	return pm.Save()
}

// UpdateProfile updates an existing capture profile.
func (pm *ProfileManager) UpdateProfile(id string, updates CaptureProfile) error {
	existing, exists := pm.config.Profiles[id]
	if !exists {
		return fmt.Errorf("profile %s not found", id)
	}

	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = time.Now()
	if updates.Name == "" {
		updates.Name = existing.Name
	}
	if updates.Device == "" {
		updates.Device = existing.Device
	}

	pm.config.Profiles[id] = updates
	return pm.Save()
}

// RemoveProfile removes a capture profile.
func (pm *ProfileManager) RemoveProfile(id string) error {
	if _, exists := pm.config.Profiles[id]; !exists {
		return fmt.Errorf("profile %s not found", id)
	}
	delete(pm.config.Profiles, id)
	return pm.Save()
}

// GetProfile retrieves a profile by ID.
func (pm *ProfileManager) GetProfile(id string) (CaptureProfile, bool) {
	profile, exists := pm.config.Profiles[id]
	return profile, exists
}

// GetProfiles returns all profiles.
func (pm *ProfileManager) GetProfiles() map[string]CaptureProfile {
	return pm.config.Profiles
}

// GetEnabledProfiles returns only enabled profiles.
func (pm *ProfileManager) GetEnabledProfiles() map[string]CaptureProfile {
	enabled := make(map[string]CaptureProfile)
	for id, profile := range pm.config.Profiles {
		if profile.Enabled {
			enabled[id] = profile
		}
	}
	return enabled
}
